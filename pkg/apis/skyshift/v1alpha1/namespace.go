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

// Namespace is a cluster-scoped kind that scopes the namespaced kinds. It
// carries no spec; its existence is the whole point.
type Namespace struct {
	Kind     string   `json:"kind"`
	Metadata Metadata `json:"metadata"`
}

var _ Object = &Namespace{}

func NewNamespace() Object { return &Namespace{Kind: string(KindNamespace)} }

func (n *Namespace) GetKind() string        { return string(KindNamespace) }
func (n *Namespace) GetMetadata() *Metadata { return &n.Metadata }
func (n *Namespace) DeepCopyObject() Object {
	out := *n
	out.Metadata = n.Metadata.clone()
	return &out
}

type NamespaceList struct {
	Kind  string      `json:"kind"`
	Items []Namespace `json:"items"`
}

func NewNamespaceList() Object { return &NamespaceList{Kind: string(KindNamespace) + "List"} }

func (l *NamespaceList) GetKind() string        { return string(KindNamespace) + "List" }
func (l *NamespaceList) GetMetadata() *Metadata { return &Metadata{} }
func (l *NamespaceList) DeepCopyObject() Object {
	out := &NamespaceList{Kind: l.Kind, Items: make([]Namespace, len(l.Items))}
	for i := range l.Items {
		out.Items[i] = *l.Items[i].DeepCopyObject().(*Namespace)
	}
	return out
}

func (l *NamespaceList) SetItems(objs []Object) {
	l.Items = make([]Namespace, len(objs))
	for i, o := range objs {
		l.Items[i] = *o.(*Namespace)
	}
}

func (l *NamespaceList) GetItems() []Object {
	out := make([]Object, len(l.Items))
	for i := range l.Items {
		item := l.Items[i]
		out[i] = &item
	}
	return out
}
