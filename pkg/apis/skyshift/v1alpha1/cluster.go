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

// ClusterManagerKind selects which clustermanager.Adapter implementation
// the Skylet uses for a given cluster.
type ClusterManagerKind string

const (
	ClusterManagerKubernetes ClusterManagerKind = "kubernetes"
	ClusterManagerSlurm      ClusterManagerKind = "slurm"
	ClusterManagerRay        ClusterManagerKind = "ray"
	ClusterManagerCloud      ClusterManagerKind = "cloud"
)

// ClusterPhase is the lifecycle phase of a Cluster.
type ClusterPhase string

const (
	ClusterPhaseInit         ClusterPhase = "INIT"
	ClusterPhaseProvisioning ClusterPhase = "PROVISIONING"
	ClusterPhaseReady        ClusterPhase = "READY"
	ClusterPhaseError        ClusterPhase = "ERROR"
	ClusterPhaseDeleting     ClusterPhase = "DELETING"
)

// ClusterSpec is the desired state of a Cluster.
type ClusterSpec struct {
	// Manager selects the backend adapter used to talk to this cluster.
	Manager ClusterManagerKind `json:"manager"`

	// ConnectionConfig is opaque, adapter-specific connection data (e.g. a
	// kubeconfig path, a Slurm REST endpoint, a cloud region).  The core
	// does not interpret it.
	ConnectionConfig map[string]string `json:"connection_config,omitempty"`
}

// ClusterStatus is the controller-maintained observed state of a Cluster.
type ClusterStatus struct {
	Status ClusterPhase `json:"status,omitempty"`

	// Capacity is the cluster's total known resources, two levels: node
	// name then resource type.
	Capacity NodeResources `json:"capacity,omitempty"`

	// AllocatableCapacity is Capacity minus whatever is already consumed
	// by scheduled jobs; the scheduler filters/scores against this.
	AllocatableCapacity NodeResources `json:"allocatable_capacity,omitempty"`

	NetworkEnabled bool `json:"network_enabled"`

	Conditions []Condition `json:"conditions,omitempty"`
}

type Cluster struct {
	Kind     string        `json:"kind"`
	Metadata Metadata      `json:"metadata"`
	Spec     ClusterSpec   `json:"spec"`
	Status   ClusterStatus `json:"status,omitempty"`
}

var _ Object = &Cluster{}

func NewCluster() Object { return &Cluster{Kind: string(KindCluster)} }

func (c *Cluster) GetKind() string        { return string(KindCluster) }
func (c *Cluster) GetMetadata() *Metadata { return &c.Metadata }

func (c *Cluster) DeepCopyObject() Object {
	out := *c
	out.Metadata = c.Metadata.clone()
	out.Spec.ConnectionConfig = cloneStringMap(c.Spec.ConnectionConfig)
	out.Status.Capacity = c.Status.Capacity.clone()
	out.Status.AllocatableCapacity = c.Status.AllocatableCapacity.clone()
	out.Status.Conditions = append([]Condition(nil), c.Status.Conditions...)
	return &out
}

// IsError reports whether the cluster is in a state the scheduler should
// drop from consideration.
func (c *Cluster) IsError() bool {
	return c.Status.Status == ClusterPhaseError
}

type ClusterList struct {
	Kind  string    `json:"kind"`
	Items []Cluster `json:"items"`
}

func NewClusterList() Object { return &ClusterList{Kind: string(KindCluster) + "List"} }

func (l *ClusterList) GetKind() string        { return string(KindCluster) + "List" }
func (l *ClusterList) GetMetadata() *Metadata { return &Metadata{} }
func (l *ClusterList) DeepCopyObject() Object {
	out := &ClusterList{Kind: l.Kind, Items: make([]Cluster, len(l.Items))}
	for i := range l.Items {
		out.Items[i] = *l.Items[i].DeepCopyObject().(*Cluster)
	}
	return out
}

func (l *ClusterList) SetItems(objs []Object) {
	l.Items = make([]Cluster, len(objs))
	for i, o := range objs {
		l.Items[i] = *o.(*Cluster)
	}
}

func (l *ClusterList) GetItems() []Object {
	out := make([]Object, len(l.Items))
	for i := range l.Items {
		item := l.Items[i]
		out[i] = &item
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}

	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
