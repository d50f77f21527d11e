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

// LinkPhase is the lifecycle phase of an inter-cluster Link.
type LinkPhase string

const (
	LinkPhaseActive LinkPhase = "ACTIVE"
	LinkPhaseFailed LinkPhase = "FAILED"
)

// LinkSpec names the two clusters a Link connects.  A Link is symmetric:
// at most one Link object exists between any unordered pair.
type LinkSpec struct {
	ClusterA string `json:"cluster_a"`
	ClusterB string `json:"cluster_b"`
}

// UnorderedPair returns the pair of cluster names in a canonical order, so
// callers can detect whether two Link specs describe the same pair
// regardless of field order.
func (s LinkSpec) UnorderedPair() (string, string) {
	if s.ClusterA <= s.ClusterB {
		return s.ClusterA, s.ClusterB
	}

	return s.ClusterB, s.ClusterA
}

type LinkStatus struct {
	Phase LinkPhase `json:"phase,omitempty"`
}

type Link struct {
	Kind     string     `json:"kind"`
	Metadata Metadata   `json:"metadata"`
	Spec     LinkSpec   `json:"spec"`
	Status   LinkStatus `json:"status,omitempty"`
}

var _ Object = &Link{}

func NewLink() Object { return &Link{Kind: string(KindLink)} }

func (l *Link) GetKind() string        { return string(KindLink) }
func (l *Link) GetMetadata() *Metadata { return &l.Metadata }
func (l *Link) DeepCopyObject() Object {
	out := *l
	out.Metadata = l.Metadata.clone()
	return &out
}

type LinkList struct {
	Kind  string `json:"kind"`
	Items []Link `json:"items"`
}

func NewLinkList() Object { return &LinkList{Kind: string(KindLink) + "List"} }

func (l *LinkList) GetKind() string        { return string(KindLink) + "List" }
func (l *LinkList) GetMetadata() *Metadata { return &Metadata{} }
func (l *LinkList) DeepCopyObject() Object {
	out := &LinkList{Kind: l.Kind, Items: make([]Link, len(l.Items))}
	for i := range l.Items {
		out.Items[i] = *l.Items[i].DeepCopyObject().(*Link)
	}
	return out
}

func (l *LinkList) SetItems(objs []Object) {
	l.Items = make([]Link, len(objs))
	for i, o := range objs {
		l.Items[i] = *o.(*Link)
	}
}

func (l *LinkList) GetItems() []Object {
	out := make([]Object, len(l.Items))
	for i := range l.Items {
		item := l.Items[i]
		out[i] = &item
	}
	return out
}
