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

package kv

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Delete when the key does not exist. Get
// reports a missing key through its found result instead.
var ErrNotFound = errors.New("key not found")

// ErrConflict is returned by CompareAndPut when the key's current revision
// does not match the caller's expected revision.
var ErrConflict = errors.New("revision conflict")

// ConflictError carries the current revision alongside ErrConflict so a
// caller can report it (the API server puts it in the 409 detail) without
// a second Get.
type ConflictError struct {
	Key             []byte
	CurrentRevision uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on %q: current revision is %d", e.Key, e.CurrentRevision)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
