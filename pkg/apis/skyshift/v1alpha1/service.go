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

// ServicePort is one exposed port of a Service.
type ServicePort struct {
	Name     string `json:"name,omitempty"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol,omitempty"`
}

// ServiceSpec is the desired state of a Service.  PrimaryCluster owns the
// companion Endpoints object.
type ServiceSpec struct {
	PrimaryCluster string            `json:"primary_cluster"`
	Selector       map[string]string `json:"selector,omitempty"`
	Ports          []ServicePort     `json:"ports,omitempty"`
}

type Service struct {
	Kind     string      `json:"kind"`
	Metadata Metadata    `json:"metadata"`
	Spec     ServiceSpec `json:"spec"`
}

var _ Object = &Service{}

func NewService() Object { return &Service{Kind: string(KindService)} }

func (s *Service) GetKind() string        { return string(KindService) }
func (s *Service) GetMetadata() *Metadata { return &s.Metadata }
func (s *Service) DeepCopyObject() Object {
	out := *s
	out.Metadata = s.Metadata.clone()
	out.Spec.Selector = cloneStringMap(s.Spec.Selector)
	out.Spec.Ports = append([]ServicePort(nil), s.Spec.Ports...)
	return &out
}

type ServiceList struct {
	Kind  string    `json:"kind"`
	Items []Service `json:"items"`
}

func NewServiceList() Object { return &ServiceList{Kind: string(KindService) + "List"} }

func (l *ServiceList) GetKind() string        { return string(KindService) + "List" }
func (l *ServiceList) GetMetadata() *Metadata { return &Metadata{} }
func (l *ServiceList) DeepCopyObject() Object {
	out := &ServiceList{Kind: l.Kind, Items: make([]Service, len(l.Items))}
	for i := range l.Items {
		out.Items[i] = *l.Items[i].DeepCopyObject().(*Service)
	}
	return out
}

func (l *ServiceList) SetItems(objs []Object) {
	l.Items = make([]Service, len(objs))
	for i, o := range objs {
		l.Items[i] = *o.(*Service)
	}
}

func (l *ServiceList) GetItems() []Object {
	out := make([]Object, len(l.Items))
	for i := range l.Items {
		item := l.Items[i]
		out[i] = &item
	}
	return out
}
