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

// Package endpoints is the Skylet's Endpoints sub-controller: the primary
// cluster creates the Endpoints object for each Service, and every
// cluster (primary or not) records its own local pod count against it.
package endpoints

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/informer"
)

const defaultTickInterval = 5 * time.Second

// Controller is the Endpoints sub-controller for one cluster.
type Controller struct {
	Client      *client.Client
	ClusterName string
	Logger      logr.Logger

	Interval time.Duration

	services *informer.Informer[v1alpha1.Service, *v1alpha1.Service]
	jobs     *informer.Informer[v1alpha1.Job, *v1alpha1.Job]
}

// Run starts the Service and Job informers and ticks the reconcile loop
// until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.services = informer.New[v1alpha1.Service, *v1alpha1.Service](
		c.Client.ResourceAllNamespaces("services"), informer.Handlers[v1alpha1.Service]{}, client.WatcherOptions{})

	c.jobs = informer.New[v1alpha1.Job, *v1alpha1.Job](
		c.Client.ResourceAllNamespaces("jobs"), informer.Handlers[v1alpha1.Job]{}, client.WatcherOptions{})

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return c.services.Run(gctx) })
	group.Go(func() error { return c.jobs.Run(gctx) })
	group.Go(func() error { return c.tickLoop(gctx) })

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

func (c *Controller) tickLoop(ctx context.Context) error {
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
	for _, svc := range c.services.GetCache() {
		c.reconcileOne(ctx, svc)
	}
}

func (c *Controller) reconcileOne(ctx context.Context, svc *v1alpha1.Service) {
	resource := c.Client.Resource("endpoints", svc.Metadata.Namespace)

	var current v1alpha1.Endpoints
	if err := resource.Get(ctx, svc.Metadata.Name, &current); err != nil {
		if svc.Spec.PrimaryCluster != c.ClusterName {
			// Only the primary cluster creates a missing Endpoints object;
			// a non-primary cluster with nothing to update waits for it.
			return
		}

		created := v1alpha1.Endpoints{
			Kind:     string(v1alpha1.KindEndpoints),
			Metadata: v1alpha1.Metadata{Name: svc.Metadata.Name, Namespace: svc.Metadata.Namespace},
		}

		var out v1alpha1.Endpoints
		if err := resource.Create(ctx, &created, &out); err != nil {
			c.Logger.Error(err, "creating endpoints", "service", svc.Metadata.Name)
			return
		}

		current = out
	}

	podCount := c.localPodCount(svc)

	if current.Status.Clusters == nil {
		current.Status.Clusters = make(map[string]v1alpha1.EndpointsClusterStatus, 1)
	}

	current.Status.Clusters[c.ClusterName] = v1alpha1.EndpointsClusterStatus{
		PodCount: podCount,
		Exposed:  podCount > 0,
	}

	var out v1alpha1.Endpoints
	if err := resource.Update(ctx, current.Metadata.Name, &current, &out); err != nil {
		c.Logger.Error(err, "updating endpoints", "service", svc.Metadata.Name)
	}
}

// localPodCount sums RUNNING replicas on this cluster across every job in
// the service's namespace whose labels satisfy the service's selector.
func (c *Controller) localPodCount(svc *v1alpha1.Service) int {
	count := 0

	for _, j := range c.jobs.GetCache() {
		if j.Metadata.Namespace != svc.Metadata.Namespace {
			continue
		}

		if !matches(svc.Spec.Selector, j.Metadata.Labels) {
			continue
		}

		count += j.Status.ReplicaStatus[c.ClusterName][v1alpha1.TaskStateRunning]
	}

	return count
}

func matches(selector, labels map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}

	return true
}
