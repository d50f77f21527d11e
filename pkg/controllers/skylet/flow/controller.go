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

// Package flow is the Skylet's submission/eviction sub-controller: it
// submits newly-scheduled work through the cluster adapter, deletes
// backend submissions for removed jobs, and evicts jobs a FilterPolicy
// change has excluded from this cluster.
package flow

import (
	"context"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/clustermanager"
	"github.com/skyshift/skyshift/pkg/informer"
)

// Controller is the submission/eviction sub-controller for one cluster.
type Controller struct {
	Client      *client.Client
	Adapter     clustermanager.Adapter
	ClusterName string
	Logger      logr.Logger

	jobs     *informer.Informer[v1alpha1.Job, *v1alpha1.Job]
	policies *informer.Informer[v1alpha1.FilterPolicy, *v1alpha1.FilterPolicy]
}

// Run starts the Job and FilterPolicy informers, driving submission,
// deletion and eviction from their callbacks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.jobs = informer.New[v1alpha1.Job, *v1alpha1.Job](
		c.Client.ResourceAllNamespaces("jobs"),
		informer.Handlers[v1alpha1.Job]{
			OnAdd:    func(j *v1alpha1.Job) { c.reconcileSubmission(ctx, j) },
			OnUpdate: func(_, j *v1alpha1.Job) { c.reconcileSubmission(ctx, j) },
			OnDelete: func(j *v1alpha1.Job) { c.reconcileDeletion(ctx, j) },
		},
		client.WatcherOptions{},
	)

	c.policies = informer.New[v1alpha1.FilterPolicy, *v1alpha1.FilterPolicy](
		c.Client.ResourceAllNamespaces("filterpolicies"),
		informer.Handlers[v1alpha1.FilterPolicy]{
			OnAdd:    func(p *v1alpha1.FilterPolicy) { c.reconcileEvictions(ctx, p) },
			OnUpdate: func(_, p *v1alpha1.FilterPolicy) { c.reconcileEvictions(ctx, p) },
		},
		client.WatcherOptions{},
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return c.jobs.Run(gctx) })
	group.Go(func() error { return c.policies.Run(gctx) })

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

// reconcileSubmission submits job through the adapter the first time a
// scheduling decision for this cluster arrives: replica_status[cluster]
// is set but job_ids[cluster] is not yet recorded.
func (c *Controller) reconcileSubmission(ctx context.Context, j *v1alpha1.Job) {
	states, scheduled := j.Status.ReplicaStatus[c.ClusterName]
	if !scheduled {
		return
	}

	if _, submitted := j.Status.JobIDs[c.ClusterName]; submitted {
		return
	}

	replicaCount := 0
	for _, count := range states {
		replicaCount += count
	}

	backendID, err := c.Adapter.SubmitJob(ctx, j, replicaCount)
	if err != nil {
		c.Logger.Error(err, "submitting job", "cluster", c.ClusterName, "job", j.Metadata.Name)
		return
	}

	resource := c.Client.Resource("jobs", j.Metadata.Namespace)

	var current v1alpha1.Job
	if err := resource.Get(ctx, j.Metadata.Name, &current); err != nil {
		c.Logger.Error(err, "fetching job before recording backend id", "job", j.Metadata.Name)
		return
	}

	if current.Status.JobIDs == nil {
		current.Status.JobIDs = make(map[string]string, 1)
	}

	current.Status.JobIDs[c.ClusterName] = backendID

	var out v1alpha1.Job
	if err := resource.Update(ctx, current.Metadata.Name, &current, &out); err != nil {
		c.Logger.Error(err, "recording backend job id", "job", current.Metadata.Name)
	}
}

// reconcileDeletion deletes the backend submission for a removed job, if
// this cluster ever had one.
func (c *Controller) reconcileDeletion(ctx context.Context, j *v1alpha1.Job) {
	backendID, ok := j.Status.JobIDs[c.ClusterName]
	if !ok {
		return
	}

	if err := c.Adapter.DeleteJob(ctx, backendID); err != nil {
		c.Logger.Error(err, "deleting backend job on job removal", "cluster", c.ClusterName, "job", j.Metadata.Name)
	}
}

// reconcileEvictions evicts every running job that policy now excludes
// from this cluster: delete the backend submission and mark every task
// this cluster was running EVICTED.
func (c *Controller) reconcileEvictions(ctx context.Context, policy *v1alpha1.FilterPolicy) {
	if !excludes(policy, c.ClusterName) {
		return
	}

	for _, j := range c.jobs.GetCache() {
		if j.Metadata.Namespace != policy.Metadata.Namespace {
			continue
		}

		if !policy.Spec.Matches(j.Metadata.Labels) {
			continue
		}

		backendID, submitted := j.Status.JobIDs[c.ClusterName]
		if !submitted {
			continue
		}

		c.evict(ctx, j, backendID)
	}
}

func excludes(policy *v1alpha1.FilterPolicy, clusterName string) bool {
	for _, name := range policy.Spec.Exclude {
		if name == clusterName {
			return true
		}
	}

	return false
}

func (c *Controller) evict(ctx context.Context, j *v1alpha1.Job, backendID string) {
	if err := c.Adapter.DeleteJob(ctx, backendID); err != nil {
		c.Logger.Error(err, "deleting backend job for eviction", "cluster", c.ClusterName, "job", j.Metadata.Name)
		return
	}

	resource := c.Client.Resource("jobs", j.Metadata.Namespace)

	var current v1alpha1.Job
	if err := resource.Get(ctx, j.Metadata.Name, &current); err != nil {
		c.Logger.Error(err, "fetching job before eviction update", "job", j.Metadata.Name)
		return
	}

	histogram := make(map[v1alpha1.TaskState]int, 1)

	for _, count := range current.Status.ReplicaStatus[c.ClusterName] {
		histogram[v1alpha1.TaskStateEvicted] += count
	}

	if current.Status.ReplicaStatus == nil {
		current.Status.ReplicaStatus = make(map[string]map[v1alpha1.TaskState]int, 1)
	}

	current.Status.ReplicaStatus[c.ClusterName] = histogram
	delete(current.Status.JobIDs, c.ClusterName)

	var out v1alpha1.Job
	if err := resource.Update(ctx, current.Metadata.Name, &current, &out); err != nil {
		c.Logger.Error(err, "recording eviction", "job", current.Metadata.Name)
	}
}
