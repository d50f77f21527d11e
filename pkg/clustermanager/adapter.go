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

// Package clustermanager declares the backend-agnostic collaborator the
// Skylet's sub-controllers drive: one Adapter per Cluster, selected by
// its spec.manager, fronting whatever actually runs the workload.
package clustermanager

import (
	"context"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
)

// ClusterStatusReport is what the Cluster Controller (heartbeat) writes
// back onto a Cluster's status after each poll.
type ClusterStatusReport struct {
	Phase               v1alpha1.ClusterPhase
	Capacity            v1alpha1.NodeResources
	AllocatableCapacity v1alpha1.NodeResources
}

// JobStatusReport is what the Job Controller writes back onto
// status.replica_status[this_cluster] and status.container_status after
// each poll, keyed by the cluster-local task name.
type JobStatusReport struct {
	TaskStates      map[string]v1alpha1.TaskState
	ContainerStatus map[string]string
}

// NetworkHandle is returned by Network() and lets the Link and Network
// controllers drive a pairwise mesh connection between two clusters'
// adapters without either adapter needing to know about the other's
// concrete type.
type NetworkHandle interface {
	// Verify checks the mesh is up between this cluster and peer,
	// returning nil if healthy.
	Verify(ctx context.Context, peer NetworkHandle) error

	// Install brings the mesh link to peer up.
	Install(ctx context.Context, peer NetworkHandle) error

	// Teardown removes the mesh link to peer.
	Teardown(ctx context.Context, peer NetworkHandle) error

	// ClusterName identifies the owning cluster, used in log lines and
	// error messages by callers that hold two handles at once.
	ClusterName() string
}

// Adapter is the per-cluster-backend collaborator. Implementations are
// intentionally shallow: enough to exercise the backend's real client
// library, not a full-featured driver for that backend.
type Adapter interface {
	// GetClusterStatus polls the backend for capacity and overall
	// health, used by the Cluster Controller's heartbeat.
	GetClusterStatus(ctx context.Context) (ClusterStatusReport, error)

	// SubmitJob submits one Job's spec for replicaCount replicas on this
	// cluster, returning the backend's job id.
	SubmitJob(ctx context.Context, job *v1alpha1.Job, replicaCount int) (string, error)

	// DeleteJob removes a previously submitted backend job.
	DeleteJob(ctx context.Context, backendJobID string) error

	// GetJobStatus polls the backend for the observed state of a
	// previously submitted job.
	GetJobStatus(ctx context.Context, backendJobID string) (JobStatusReport, error)

	// Network returns this cluster's mesh network handle.
	Network() NetworkHandle
}

// Factory constructs an Adapter for a Cluster's connection_config. Each
// clustermanager subpackage registers one under its
// v1alpha1.ClusterManagerKind.
type Factory func(spec v1alpha1.ClusterSpec) (Adapter, error)

//nolint:gochecknoglobals
var factories = map[v1alpha1.ClusterManagerKind]Factory{}

// Register adds a Factory for kind. Called from each adapter
// subpackage's init, mirroring the registry package's static-table
// design rather than reflective plugin discovery.
func Register(kind v1alpha1.ClusterManagerKind, factory Factory) {
	factories[kind] = factory
}

// New constructs the Adapter for a Cluster's spec.manager.
func New(spec v1alpha1.ClusterSpec) (Adapter, error) {
	factory, ok := factories[spec.Manager]
	if !ok {
		return nil, &UnsupportedManagerError{Manager: spec.Manager}
	}

	return factory(spec)
}

// UnsupportedManagerError reports a Cluster naming a manager kind with no
// registered adapter.
type UnsupportedManagerError struct {
	Manager v1alpha1.ClusterManagerKind
}

func (e *UnsupportedManagerError) Error() string {
	return "unsupported cluster manager: " + string(e.Manager)
}
