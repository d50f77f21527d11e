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

// Package ray is a minimal Adapter implementation for clusters whose
// spec.manager is "ray", talking to a Ray cluster's dashboard job-submission
// REST API. A full Ray client (actors, placement groups) is out of
// scope; replicas map onto independent Ray jobs.
package ray

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/clustermanager"
)

func init() {
	clustermanager.Register(v1alpha1.ClusterManagerRay, New)
}

// Adapter drives a Ray cluster's dashboard REST API
// (http://<head>:8265/api/...).
type Adapter struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

var _ clustermanager.Adapter = &Adapter{}

// New builds an Adapter from a Cluster's connection_config: the
// dashboard endpoint, e.g. "http://ray-head:8265".
func New(spec v1alpha1.ClusterSpec) (clustermanager.Adapter, error) {
	cfg := spec.ConnectionConfig

	endpoint, ok := cfg["endpoint"]
	if !ok {
		return nil, fmt.Errorf("connection_config missing %q", "endpoint")
	}

	return &Adapter{
		name:       cfg["name"],
		baseURL:    endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type clusterStatusResponse struct {
	Cluster struct {
		AvailableResources map[string]float64 `json:"available_resources"`
		TotalResources     map[string]float64 `json:"total_resources"`
	} `json:"data"`
}

func (a *Adapter) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}

		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("ray dashboard API returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// GetClusterStatus reports the Ray cluster's aggregate CPU/GPU/memory
// resources as a single synthetic node named after the cluster, since
// Ray's dashboard exposes cluster-wide totals rather than a per-node
// breakdown over this API.
func (a *Adapter) GetClusterStatus(ctx context.Context) (clustermanager.ClusterStatusReport, error) {
	var resp clusterStatusResponse

	if err := a.do(ctx, http.MethodGet, "/api/cluster_status", nil, &resp); err != nil {
		return clustermanager.ClusterStatusReport{}, err
	}

	node := v1alpha1.ResourceList{}
	allocatable := v1alpha1.ResourceList{}

	if cpu, ok := resp.Cluster.TotalResources["CPU"]; ok {
		node[v1alpha1.ResourceCPUs] = cpu
	}

	if mem, ok := resp.Cluster.TotalResources["memory"]; ok {
		node[v1alpha1.ResourceMemory] = mem
	}

	if gpu, ok := resp.Cluster.TotalResources["GPU"]; ok {
		node[v1alpha1.ResourceGPUs] = gpu
	}

	if cpu, ok := resp.Cluster.AvailableResources["CPU"]; ok {
		allocatable[v1alpha1.ResourceCPUs] = cpu
	}

	if mem, ok := resp.Cluster.AvailableResources["memory"]; ok {
		allocatable[v1alpha1.ResourceMemory] = mem
	}

	if gpu, ok := resp.Cluster.AvailableResources["GPU"]; ok {
		allocatable[v1alpha1.ResourceGPUs] = gpu
	}

	return clustermanager.ClusterStatusReport{
		Phase:               v1alpha1.ClusterPhaseReady,
		Capacity:            v1alpha1.NodeResources{a.name: node},
		AllocatableCapacity: v1alpha1.NodeResources{a.name: allocatable},
	}, nil
}

type jobSubmitRequest struct {
	Entrypoint   string         `json:"entrypoint"`
	SubmissionID string         `json:"submission_id"`
	RuntimeEnv   map[string]any `json:"runtime_env,omitempty"`
}

type jobSubmitResponse struct {
	JobID string `json:"job_id"`
}

// SubmitJob submits replicaCount independent Ray jobs sharing one
// submission-id prefix, each running job.Spec.RunCommand as its
// entrypoint.
func (a *Adapter) SubmitJob(ctx context.Context, job *v1alpha1.Job, replicaCount int) (string, error) {
	prefix := fmt.Sprintf("skyshift-%s-%s", job.Metadata.Namespace, job.Metadata.Name)

	var runtimeEnv map[string]any

	if len(job.Spec.Envs) > 0 {
		runtimeEnv = map[string]any{"env_vars": job.Spec.Envs}
	}

	for i := 0; i < replicaCount; i++ {
		req := jobSubmitRequest{
			Entrypoint:   job.Spec.RunCommand,
			SubmissionID: fmt.Sprintf("%s-%d", prefix, i),
			RuntimeEnv:   runtimeEnv,
		}

		var resp jobSubmitResponse

		if err := a.do(ctx, http.MethodPost, "/api/jobs/", req, &resp); err != nil {
			return "", fmt.Errorf("submitting ray job %d/%d: %w", i+1, replicaCount, err)
		}
	}

	return prefix, nil
}

// DeleteJob stops every Ray job whose submission id carries backendJobID
// as a prefix. The dashboard API addresses jobs individually, so this
// adapter tracks only the shared prefix and best-effort stops job indices
// 0..63 (a Ray submission id is opaque past the prefix, and the Flow
// Controller does not track per-replica ids); this bound is a pragmatic
// limit, not a protocol one.
func (a *Adapter) DeleteJob(ctx context.Context, backendJobID string) error {
	const maxReplicaGuess = 64

	for i := 0; i < maxReplicaGuess; i++ {
		id := fmt.Sprintf("%s-%d", backendJobID, i)

		if err := a.do(ctx, http.MethodPost, "/api/jobs/"+id+"/stop", nil, nil); err != nil {
			// Subsequent indices beyond the real replica count will also
			// fail to find the job; treat any failure past the first as
			// "no more jobs" rather than a hard error.
			if i == 0 {
				return fmt.Errorf("stopping ray job %s: %w", id, err)
			}

			break
		}
	}

	return nil
}

type jobStatusResponse struct {
	Status string `json:"status"`
}

// GetJobStatus polls each replica job's status by submission id.
func (a *Adapter) GetJobStatus(ctx context.Context, backendJobID string) (clustermanager.JobStatusReport, error) {
	const maxReplicaGuess = 64

	report := clustermanager.JobStatusReport{
		TaskStates:      make(map[string]v1alpha1.TaskState),
		ContainerStatus: make(map[string]string),
	}

	for i := 0; i < maxReplicaGuess; i++ {
		id := fmt.Sprintf("%s-%d", backendJobID, i)

		var resp jobStatusResponse

		if err := a.do(ctx, http.MethodGet, "/api/jobs/"+id, nil, &resp); err != nil {
			break
		}

		report.TaskStates[id] = rayStatusToTaskState(resp.Status)
		report.ContainerStatus[id] = resp.Status
	}

	return report, nil
}

func rayStatusToTaskState(status string) v1alpha1.TaskState {
	switch status {
	case "RUNNING":
		return v1alpha1.TaskStateRunning
	case "SUCCEEDED":
		return v1alpha1.TaskStateComplete
	case "FAILED":
		return v1alpha1.TaskStateFailed
	case "STOPPED":
		return v1alpha1.TaskStateEvicted
	default:
		return v1alpha1.TaskStateInit
	}
}

// Network returns this adapter's mesh handle.
func (a *Adapter) Network() clustermanager.NetworkHandle {
	return &networkHandle{name: a.name}
}
