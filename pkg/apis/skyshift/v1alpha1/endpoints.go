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

// EndpointsClusterStatus is what one cluster has recorded about a service:
// its local pod count, and whether it has exposed the service into the
// cross-cluster mesh.
type EndpointsClusterStatus struct {
	PodCount int  `json:"pod_count"`
	Exposed  bool `json:"exposed"`
}

// EndpointsStatus aggregates per-cluster records; the primary cluster
// creates the object, every cluster updates its own entry.
type EndpointsStatus struct {
	Clusters map[string]EndpointsClusterStatus `json:"clusters,omitempty"`
}

// Endpoints exists iff a Service by the same name/namespace exists; it is
// owned by that Service's primary cluster.
type Endpoints struct {
	Kind     string          `json:"kind"`
	Metadata Metadata        `json:"metadata"`
	Status   EndpointsStatus `json:"status,omitempty"`
}

var _ Object = &Endpoints{}

func NewEndpoints() Object { return &Endpoints{Kind: string(KindEndpoints)} }

func (e *Endpoints) GetKind() string        { return string(KindEndpoints) }
func (e *Endpoints) GetMetadata() *Metadata { return &e.Metadata }
func (e *Endpoints) DeepCopyObject() Object {
	out := *e
	out.Metadata = e.Metadata.clone()

	if e.Status.Clusters != nil {
		out.Status.Clusters = make(map[string]EndpointsClusterStatus, len(e.Status.Clusters))
		for k, v := range e.Status.Clusters {
			out.Status.Clusters[k] = v
		}
	}

	return &out
}

type EndpointsList struct {
	Kind  string      `json:"kind"`
	Items []Endpoints `json:"items"`
}

func NewEndpointsList() Object { return &EndpointsList{Kind: string(KindEndpoints) + "List"} }

func (l *EndpointsList) GetKind() string        { return string(KindEndpoints) + "List" }
func (l *EndpointsList) GetMetadata() *Metadata { return &Metadata{} }
func (l *EndpointsList) DeepCopyObject() Object {
	out := &EndpointsList{Kind: l.Kind, Items: make([]Endpoints, len(l.Items))}
	for i := range l.Items {
		out.Items[i] = *l.Items[i].DeepCopyObject().(*Endpoints)
	}
	return out
}

func (l *EndpointsList) SetItems(objs []Object) {
	l.Items = make([]Endpoints, len(objs))
	for i, o := range objs {
		l.Items[i] = *o.(*Endpoints)
	}
}

func (l *EndpointsList) GetItems() []Object {
	out := make([]Object, len(l.Items))
	for i := range l.Items {
		item := l.Items[i]
		out[i] = &item
	}
	return out
}
