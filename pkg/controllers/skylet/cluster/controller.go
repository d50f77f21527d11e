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

// Package cluster is the Skylet's heartbeat sub-controller: on every tick
// it asks the cluster adapter for current status/capacity and writes it
// back onto the Cluster object.
package cluster

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/clustermanager"
	"github.com/skyshift/skyshift/pkg/util/retry"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultRetryPeriod       = 1 * time.Second
	defaultRetryBudget       = 10 * time.Second
)

// Controller is the heartbeat sub-controller for one cluster.
type Controller struct {
	Client      *client.Client
	Adapter     clustermanager.Adapter
	ClusterName string
	Logger      logr.Logger

	// Interval overrides defaultHeartbeatInterval; zero means default.
	Interval time.Duration
}

// Run ticks every Interval, refreshing the Cluster's status until ctx is
// cancelled. A tick whose adapter call keeps failing past the retry
// budget marks the cluster ERROR rather than leaving stale status in
// place.
func (c *Controller) Run(ctx context.Context) error {
	interval := c.Interval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
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
	var report clustermanager.ClusterStatusReport

	err := retry.WithContext(ctx).WithPeriod(defaultRetryPeriod).WithTimeout(defaultRetryBudget).Do(func() error {
		r, err := c.Adapter.GetClusterStatus(ctx)
		if err != nil {
			return err
		}

		report = r

		return nil
	})

	resource := c.Client.Resource("clusters", "")

	var current v1alpha1.Cluster
	if getErr := resource.Get(ctx, c.ClusterName, &current); getErr != nil {
		c.Logger.Error(getErr, "fetching cluster before heartbeat update", "cluster", c.ClusterName)
		return
	}

	if err != nil {
		c.Logger.Error(err, "cluster adapter unreachable past retry budget", "cluster", c.ClusterName)
		current.Status.Status = v1alpha1.ClusterPhaseError
	} else {
		current.Status.Status = report.Phase
		current.Status.Capacity = report.Capacity
		current.Status.AllocatableCapacity = report.AllocatableCapacity
	}

	var out v1alpha1.Cluster
	if err := resource.Update(ctx, c.ClusterName, &current, &out); err != nil {
		c.Logger.Error(err, "writing cluster heartbeat", "cluster", c.ClusterName)
	}
}
