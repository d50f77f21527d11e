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

package registry

import (
	"fmt"

	"sigs.k8s.io/yaml"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
)

// kindProbe is unmarshalled first to discover which concrete type to
// decode the rest of the document into.  Unknown fields beyond "kind" are
// tolerated here and re-parsed by the concrete type below.
type kindProbe struct {
	Kind string `json:"kind"`
}

// Decode accepts either YAML or JSON (sigs.k8s.io/yaml normalises YAML to
// JSON first, so one code path handles both) and returns a typed Object
// for whatever kind the document names.  Unknown top-level fields are
// silently ignored; an unrecognised kind is an error.
func Decode(data []byte) (v1alpha1.Object, error) {
	var probe kindProbe

	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding kind: %w", err)
	}

	entry, err := Lookup(probe.Kind)
	if err != nil {
		return nil, err
	}

	obj := entry.New()

	// Plain Unmarshal, not UnmarshalStrict: unknown fields are forward
	// compatibility, not an error. Unknown enum values still fail, since
	// they land on typed fields that Validate checks by value.
	if err := yaml.Unmarshal(data, obj); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %s", ErrInvalid, probe.Kind, err.Error())
	}

	return obj, nil
}

// Encode renders an Object as YAML, the canonical on-disk/CLI form;
// callers that need JSON for the wire re-marshal with encoding/json since
// the in-memory struct tags are already JSON tags.
func Encode(obj v1alpha1.Object) ([]byte, error) {
	data, err := yaml.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", obj.GetKind(), err)
	}

	return data, nil
}
