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

package v1alpha1

// FilterPolicySpec restricts which clusters a matching job may run on.
// LabelsSelector is a subset-match against a Job's labels: the policy
// applies to a job iff every key/value in LabelsSelector is present in the
// job's metadata.labels.
type FilterPolicySpec struct {
	LabelsSelector map[string]string `json:"labels_selector,omitempty"`
	Include        []string          `json:"include,omitempty"`
	Exclude        []string          `json:"exclude,omitempty"`
}

// Matches reports whether the policy's label selector is satisfied by the
// given job labels.
func (s FilterPolicySpec) Matches(jobLabels map[string]string) bool {
	for k, v := range s.LabelsSelector {
		if jobLabels[k] != v {
			return false
		}
	}

	return true
}

type FilterPolicy struct {
	Kind     string           `json:"kind"`
	Metadata Metadata         `json:"metadata"`
	Spec     FilterPolicySpec `json:"spec"`
}

var _ Object = &FilterPolicy{}

func NewFilterPolicy() Object { return &FilterPolicy{Kind: string(KindFilterPolicy)} }

func (f *FilterPolicy) GetKind() string        { return string(KindFilterPolicy) }
func (f *FilterPolicy) GetMetadata() *Metadata { return &f.Metadata }
func (f *FilterPolicy) DeepCopyObject() Object {
	out := *f
	out.Metadata = f.Metadata.clone()
	out.Spec.LabelsSelector = cloneStringMap(f.Spec.LabelsSelector)
	out.Spec.Include = append([]string(nil), f.Spec.Include...)
	out.Spec.Exclude = append([]string(nil), f.Spec.Exclude...)
	return &out
}

type FilterPolicyList struct {
	Kind  string         `json:"kind"`
	Items []FilterPolicy `json:"items"`
}

func NewFilterPolicyList() Object { return &FilterPolicyList{Kind: string(KindFilterPolicy) + "List"} }

func (l *FilterPolicyList) GetKind() string        { return string(KindFilterPolicy) + "List" }
func (l *FilterPolicyList) GetMetadata() *Metadata { return &Metadata{} }
func (l *FilterPolicyList) DeepCopyObject() Object {
	out := &FilterPolicyList{Kind: l.Kind, Items: make([]FilterPolicy, len(l.Items))}
	for i := range l.Items {
		out.Items[i] = *l.Items[i].DeepCopyObject().(*FilterPolicy)
	}
	return out
}

func (l *FilterPolicyList) SetItems(objs []Object) {
	l.Items = make([]FilterPolicy, len(objs))
	for i, o := range objs {
		l.Items[i] = *o.(*FilterPolicy)
	}
}

func (l *FilterPolicyList) GetItems() []Object {
	out := make([]Object, len(l.Items))
	for i := range l.Items {
		item := l.Items[i]
		out[i] = &item
	}
	return out
}
