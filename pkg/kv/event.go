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

import "encoding/json"

// Op is the raw store operation that produced an Event.
type Op string

const (
	OpPut    Op = "PUT"
	OpDelete Op = "DELETE"
)

// EventType is the semantic event the layer above derives from an Event's
// (Op, PrevRevision) pair.
type EventType string

const (
	EventAdd    EventType = "ADD"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one committed mutation under a watched prefix. Value holds the
// new value for PUT, and the value that existed immediately before the
// delete for DELETE.
type Event struct {
	Op           Op     `json:"op"`
	Key          []byte `json:"key"`
	Value        []byte `json:"value"`
	Revision     uint64 `json:"revision"`
	PrevRevision uint64 `json:"prevRevision"`
}

// Type derives the semantic event type. A PUT whose key had no prior
// revision is an ADD; a PUT over an existing key is an UPDATE; a DELETE is
// always a DELETE, carrying the value as it was before removal.
func (e Event) Type() EventType {
	if e.Op == OpDelete {
		return EventDelete
	}

	if e.PrevRevision == 0 {
		return EventAdd
	}

	return EventUpdate
}

func encodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEvent(data []byte) (Event, error) {
	var e Event

	err := json.Unmarshal(data, &e)

	return e, err
}
