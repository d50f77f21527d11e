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
	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/kv"
)

// WatchEvent is one line of a streaming watch response: the semantic event
// derived from the store's raw (op, prev_revision) pair, and the object as
// it looked immediately after the event (the value prior to deletion, for
// a DELETE).
type WatchEvent struct {
	EventType kv.EventType    `json:"event_type"`
	Object    v1alpha1.Object `json:"object"`
}
