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

// Package v1alpha1 defines the closed set of object kinds that make up the
// Skyshift data model: the envelope every kind shares, and the per-kind
// spec/status bodies described in the data model section of the design.
package v1alpha1

import "time"

// Kind identifies one of the enumerated object kinds.  The set is closed;
// new kinds are added here, not discovered dynamically.
type Kind string

const (
	KindJob          Kind = "Job"
	KindFilterPolicy Kind = "FilterPolicy"
	KindService      Kind = "Service"
	KindEndpoints    Kind = "Endpoints"
	KindCluster      Kind = "Cluster"
	KindNamespace    Kind = "Namespace"
	KindLink         Kind = "Link"
	KindRole         Kind = "Role"
)

// Metadata is the part of the envelope common to every kind.
type Metadata struct {
	// Name uniquely identifies the object within its scope (namespace+kind,
	// or kind for cluster-scoped kinds).  Must match [A-Za-z0-9_.-]+.
	Name string `json:"name"`

	// Namespace scopes the object for namespaced kinds.  Empty for
	// cluster-scoped kinds.
	Namespace string `json:"namespace,omitempty"`

	// Labels are arbitrary user-defined key/value pairs, used by label
	// selectors (FilterPolicy, Service/Job matching).
	Labels map[string]string `json:"labels,omitempty"`

	// Annotations are arbitrary user-defined key/value pairs not used for
	// selection.
	Annotations map[string]string `json:"annotations,omitempty"`

	// ResourceVersion is assigned by the store on every write and is
	// monotonically increasing per key.  Clients propagate it back on
	// update for optimistic concurrency.
	ResourceVersion uint64 `json:"resource_version,omitempty"`
}

func (m *Metadata) clone() Metadata {
	out := *m

	if m.Labels != nil {
		out.Labels = make(map[string]string, len(m.Labels))
		for k, v := range m.Labels {
			out.Labels[k] = v
		}
	}

	if m.Annotations != nil {
		out.Annotations = make(map[string]string, len(m.Annotations))
		for k, v := range m.Annotations {
			out.Annotations[k] = v
		}
	}

	return out
}

// Object is implemented by every kind.  The registry uses it to move
// generically between the wire/store representation and typed access;
// see Design Note on dynamic dispatch over kinds.
type Object interface {
	GetKind() string
	GetMetadata() *Metadata
	DeepCopyObject() Object
}

// List is implemented by the companion list kind of every Object.
type List interface {
	GetKind() string
	SetItems([]Object)
	GetItems() []Object
}

// Condition is one entry in an append-only status history.
type Condition struct {
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	TransitionTime time.Time `json:"transition_time"`
	Message        string    `json:"message,omitempty"`
}

// ResourceType is one of the closed enum of resource kinds a node can
// advertise and a job replica can request.
type ResourceType string

const (
	ResourceCPUs   ResourceType = "cpus"
	ResourceMemory ResourceType = "memory"
	ResourceGPUs   ResourceType = "gpus"
	ResourceDisk   ResourceType = "disk"
	ResourceT4     ResourceType = "T4"
	ResourceL4     ResourceType = "L4"
	ResourceV100   ResourceType = "V100"
	ResourceA100   ResourceType = "A100"
	ResourceP100   ResourceType = "P100"
	ResourceK80    ResourceType = "K80"
	ResourceH100   ResourceType = "H100"
)

// AcceleratorTypes enumerates the ResourceTypes that represent a specific
// accelerator SKU rather than a generic resource class.
var AcceleratorTypes = []ResourceType{ResourceT4, ResourceL4, ResourceV100, ResourceA100, ResourceP100, ResourceK80, ResourceH100}

// ResourceList is a sparse map of resource type to quantity.
type ResourceList map[ResourceType]float64

func (r ResourceList) clone() ResourceList {
	if r == nil {
		return nil
	}

	out := make(ResourceList, len(r))
	for k, v := range r {
		out[k] = v
	}

	return out
}

// NodeResources maps a node name to its resource list, used for both
// capacity and allocatable_capacity on a Cluster.
type NodeResources map[string]ResourceList

func (n NodeResources) clone() NodeResources {
	if n == nil {
		return nil
	}

	out := make(NodeResources, len(n))
	for k, v := range n {
		out[k] = v.clone()
	}

	return out
}

// TaskState is the per-replica lifecycle state a cluster reports back for
// a job's tasks.
type TaskState string

const (
	TaskStateInit     TaskState = "INIT"
	TaskStateRunning  TaskState = "RUNNING"
	TaskStateFailed   TaskState = "FAILED"
	TaskStateEvicted  TaskState = "EVICTED"
	TaskStateComplete TaskState = "COMPLETED"
)

// JobPhase is the overall scheduling phase of a Job.
type JobPhase string

const (
	JobPhaseInit   JobPhase = "INIT"
	JobPhaseActive JobPhase = "ACTIVE"
	JobPhaseFailed JobPhase = "FAILED"
)

// RestartPolicy is a Job's declared restart behaviour. It is validated and
// stored with the Job; no controller reads it, and the Flow Controller does
// not resubmit a job whose backend job id disappears.
type RestartPolicy string

const (
	RestartPolicyAlways    RestartPolicy = "Always"
	RestartPolicyNever     RestartPolicy = "Never"
	RestartPolicyOnFailure RestartPolicy = "OnFailure"
)

// JobSpec is the desired state of a Job.
type JobSpec struct {
	Image         string            `json:"image"`
	Replicas      int               `json:"replicas"`
	Resources     ResourceList      `json:"resources"`
	RestartPolicy RestartPolicy     `json:"restart_policy,omitempty"`
	RunCommand    string            `json:"run_command,omitempty"`
	Envs          map[string]string `json:"envs,omitempty"`
}

func (s JobSpec) clone() JobSpec {
	out := s
	out.Resources = s.Resources.clone()

	if s.Envs != nil {
		out.Envs = make(map[string]string, len(s.Envs))
		for k, v := range s.Envs {
			out.Envs[k] = v
		}
	}

	return out
}

// JobStatus is the controller-maintained observed state of a Job.
type JobStatus struct {
	Status JobPhase `json:"status,omitempty"`

	// ReplicaStatus maps cluster name to a task-state histogram; the
	// summed counts across all clusters equal spec.Replicas once
	// scheduling succeeds.
	ReplicaStatus map[string]map[TaskState]int `json:"replica_status,omitempty"`

	// JobIDs maps cluster name to the backend job id, present once the
	// cluster controller has observed a submission ack.
	JobIDs map[string]string `json:"job_ids,omitempty"`

	ContainerStatus map[string]string `json:"container_status,omitempty"`

	Conditions []Condition `json:"conditions,omitempty"`
}
