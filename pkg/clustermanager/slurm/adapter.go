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

// Package slurm is a minimal Adapter implementation for clusters whose
// spec.manager is "slurm", talking to a Slurm REST API (slurmrestd)
// endpoint. A complete batch-scheduler client is out of scope; this
// exercises the same Adapter shape as the other backends over plain
// net/http.
package slurm

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
	clustermanager.Register(v1alpha1.ClusterManagerSlurm, New)
}

// Adapter drives a Slurm REST API endpoint.
type Adapter struct {
	name       string
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ clustermanager.Adapter = &Adapter{}

// New builds an Adapter from a Cluster's connection_config: endpoint and
// an optional bearer token for slurmrestd's JWT auth plugin.
func New(spec v1alpha1.ClusterSpec) (clustermanager.Adapter, error) {
	cfg := spec.ConnectionConfig

	endpoint, ok := cfg["endpoint"]
	if !ok {
		return nil, fmt.Errorf("connection_config missing %q", "endpoint")
	}

	return &Adapter{
		name:       cfg["name"],
		baseURL:    endpoint,
		token:      cfg["token"],
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type nodeInfo struct {
	Name   string `json:"name"`
	CPUs   int    `json:"cpus"`
	Memory int    `json:"real_memory"`
}

type nodesResponse struct {
	Nodes []nodeInfo `json:"nodes"`
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

	if a.token != "" {
		req.Header.Set("X-SLURM-USER-TOKEN", a.token)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("slurm API returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// GetClusterStatus lists Slurm nodes via the slurmrestd /nodes endpoint
// and reports each node's CPU/memory as one capacity entry per node.
func (a *Adapter) GetClusterStatus(ctx context.Context) (clustermanager.ClusterStatusReport, error) {
	var resp nodesResponse

	if err := a.do(ctx, http.MethodGet, "/slurm/v0.0.39/nodes", nil, &resp); err != nil {
		return clustermanager.ClusterStatusReport{}, err
	}

	capacity := make(v1alpha1.NodeResources, len(resp.Nodes))

	for _, node := range resp.Nodes {
		capacity[node.Name] = v1alpha1.ResourceList{
			v1alpha1.ResourceCPUs:   float64(node.CPUs),
			v1alpha1.ResourceMemory: float64(node.Memory),
		}
	}

	return clustermanager.ClusterStatusReport{
		Phase:               v1alpha1.ClusterPhaseReady,
		Capacity:            capacity,
		AllocatableCapacity: capacity,
	}, nil
}

type submitRequest struct {
	Script string           `json:"script"`
	Job    submitRequestJob `json:"job"`
}

type submitRequestJob struct {
	Name        string            `json:"name"`
	Environment map[string]string `json:"environment,omitempty"`
}

type submitResponse struct {
	JobID int `json:"job_id"`
}

// SubmitJob submits a single Slurm batch job whose script runs
// job.Spec.RunCommand replicaCount times as a Slurm job array, one array
// task per replica.
func (a *Adapter) SubmitJob(ctx context.Context, job *v1alpha1.Job, replicaCount int) (string, error) {
	name := fmt.Sprintf("skyshift-%s-%s", job.Metadata.Namespace, job.Metadata.Name)

	script := fmt.Sprintf("#!/bin/sh\n#SBATCH --array=0-%d\n%s\n", replicaCount-1, job.Spec.RunCommand)

	req := submitRequest{
		Script: script,
		Job: submitRequestJob{
			Name:        name,
			Environment: job.Spec.Envs,
		},
	}

	var resp submitResponse

	if err := a.do(ctx, http.MethodPost, "/slurm/v0.0.39/job/submit", req, &resp); err != nil {
		return "", fmt.Errorf("submitting job: %w", err)
	}

	return fmt.Sprintf("%d", resp.JobID), nil
}

// DeleteJob cancels the backend Slurm job.
func (a *Adapter) DeleteJob(ctx context.Context, backendJobID string) error {
	if err := a.do(ctx, http.MethodDelete, "/slurm/v0.0.39/job/"+backendJobID, nil, nil); err != nil {
		return fmt.Errorf("cancelling job %s: %w", backendJobID, err)
	}

	return nil
}

type jobStatusResponse struct {
	Jobs []struct {
		JobState string `json:"job_state"`
	} `json:"jobs"`
}

// GetJobStatus polls the job's current Slurm job_state.
func (a *Adapter) GetJobStatus(ctx context.Context, backendJobID string) (clustermanager.JobStatusReport, error) {
	var resp jobStatusResponse

	if err := a.do(ctx, http.MethodGet, "/slurm/v0.0.39/job/"+backendJobID, nil, &resp); err != nil {
		return clustermanager.JobStatusReport{}, fmt.Errorf("fetching job %s: %w", backendJobID, err)
	}

	report := clustermanager.JobStatusReport{
		TaskStates:      make(map[string]v1alpha1.TaskState, len(resp.Jobs)),
		ContainerStatus: make(map[string]string, len(resp.Jobs)),
	}

	for i, j := range resp.Jobs {
		task := fmt.Sprintf("%s-%d", backendJobID, i)
		report.TaskStates[task] = slurmStateToTaskState(j.JobState)
		report.ContainerStatus[task] = j.JobState
	}

	return report, nil
}

func slurmStateToTaskState(state string) v1alpha1.TaskState {
	switch state {
	case "RUNNING":
		return v1alpha1.TaskStateRunning
	case "COMPLETED":
		return v1alpha1.TaskStateComplete
	case "FAILED", "TIMEOUT", "NODE_FAIL":
		return v1alpha1.TaskStateFailed
	case "PREEMPTED", "CANCELLED":
		return v1alpha1.TaskStateEvicted
	default:
		return v1alpha1.TaskStateInit
	}
}

// Network returns this adapter's mesh handle.
func (a *Adapter) Network() clustermanager.NetworkHandle {
	return &networkHandle{name: a.name}
}
