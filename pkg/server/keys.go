/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"fmt"

	"github.com/skyshift/skyshift/pkg/constants"
)

// collectionKey returns the prefix under which every object of kind
// (optionally scoped to namespace) lives in the store.
func collectionKey(kind, namespace string) []byte {
	if namespace == "" {
		return []byte(fmt.Sprintf("%s/%s/", constants.KeyPrefix, kind))
	}

	return []byte(fmt.Sprintf("%s/%s/%s/", constants.KeyPrefix, kind, namespace))
}

// objectKey returns the exact key for one object.
func objectKey(kind, namespace, name string) []byte {
	if namespace == "" {
		return []byte(fmt.Sprintf("%s/%s/%s", constants.KeyPrefix, kind, name))
	}

	return []byte(fmt.Sprintf("%s/%s/%s/%s", constants.KeyPrefix, kind, namespace, name))
}
