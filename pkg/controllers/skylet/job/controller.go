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

// Package job is the Skylet's status sub-controller: on every tick it asks
// the cluster adapter for task status of every job this cluster has a
// backend submission for, and writes the observed counts back.
package job

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/clustermanager"
	"github.com/skyshift/skyshift/pkg/informer"
)

const defaultTickInterval = 5 * time.Second

// Controller is the status sub-controller for one cluster.
type Controller struct {
	Client      *client.Client
	Adapter     clustermanager.Adapter
	ClusterName string
	Logger      logr.Logger

	Interval time.Duration

	jobs *informer.Informer[v1alpha1.Job, *v1alpha1.Job]
}

// Run starts the Job informer and ticks the status reconcile loop until
// ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.jobs = informer.New[v1alpha1.Job, *v1alpha1.Job](
		c.Client.ResourceAllNamespaces("jobs"), informer.Handlers[v1alpha1.Job]{}, client.WatcherOptions{})

	go func() {
		if err := c.jobs.Run(ctx); err != nil && ctx.Err() == nil {
			c.Logger.Error(err, "job informer stopped", "cluster", c.ClusterName)
		}
	}()

	interval := c.Interval
	if interval <= 0 {
		interval = defaultTickInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	for _, j := range c.jobs.GetCache() {
		backendID, ok := j.Status.JobIDs[c.ClusterName]
		if !ok {
			continue
		}

		report, err := c.Adapter.GetJobStatus(ctx, backendID)
		if err != nil {
			c.Logger.Error(err, "fetching job status", "cluster", c.ClusterName, "job", j.Metadata.Name)
			continue
		}

		c.writeStatus(ctx, j, report)
	}
}

func (c *Controller) writeStatus(ctx context.Context, cached *v1alpha1.Job, report clustermanager.JobStatusReport) {
	resource := c.Client.Resource("jobs", cached.Metadata.Namespace)

	var current v1alpha1.Job
	if err := resource.Get(ctx, cached.Metadata.Name, &current); err != nil {
		c.Logger.Error(err, "fetching job before status update", "job", cached.Metadata.Name)
		return
	}

	if current.Status.ReplicaStatus == nil {
		current.Status.ReplicaStatus = make(map[string]map[v1alpha1.TaskState]int)
	}

	histogram := make(map[v1alpha1.TaskState]int, len(report.TaskStates))
	for _, state := range report.TaskStates {
		histogram[state]++
	}

	current.Status.ReplicaStatus[c.ClusterName] = histogram

	if current.Status.ContainerStatus == nil {
		current.Status.ContainerStatus = make(map[string]string, len(report.ContainerStatus))
	}

	for task, status := range report.ContainerStatus {
		current.Status.ContainerStatus[task] = status
	}

	var out v1alpha1.Job
	if err := resource.Update(ctx, current.Metadata.Name, &current, &out); err != nil {
		c.Logger.Error(err, "writing job status", "job", current.Metadata.Name)
	}
}
