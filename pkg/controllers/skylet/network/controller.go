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

// Package network is the Skylet's mesh-health sub-controller: for every
// Link naming this cluster, it verifies the pairwise mesh connection and
// installs it if absent.
package network

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/clustermanager"
)

const defaultVerifyInterval = 15 * time.Second

// Controller is the mesh-health sub-controller for one cluster.
type Controller struct {
	Client      *client.Client
	Adapter     clustermanager.Adapter
	ClusterName string
	Logger      logr.Logger

	Interval time.Duration
}

// Run ticks every Interval, verifying and repairing this cluster's links
// until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	interval := c.Interval
	if interval <= 0 {
		interval = defaultVerifyInterval
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
	var links v1alpha1.LinkList
	if err := c.Client.Resource("links", "").List(ctx, false, &links); err != nil {
		c.Logger.Error(err, "listing links", "cluster", c.ClusterName)
		return
	}

	healthy := true

	for i := range links.Items {
		link := links.Items[i]

		a, b := link.Spec.UnorderedPair()
		if a != c.ClusterName && b != c.ClusterName {
			continue
		}

		peerName := a
		if peerName == c.ClusterName {
			peerName = b
		}

		if err := c.reconcileLink(ctx, peerName); err != nil {
			c.Logger.Error(err, "reconciling mesh link", "cluster", c.ClusterName, "peer", peerName)
			healthy = false
		}
	}

	c.setNetworkEnabled(ctx, healthy)
}

func (c *Controller) reconcileLink(ctx context.Context, peerName string) error {
	var peer v1alpha1.Cluster
	if err := c.Client.Resource("clusters", "").Get(ctx, peerName, &peer); err != nil {
		return err
	}

	peerAdapter, err := clustermanager.New(peer.Spec)
	if err != nil {
		return err
	}

	handle := c.Adapter.Network()
	peerHandle := peerAdapter.Network()

	if err := handle.Verify(ctx, peerHandle); err == nil {
		return nil
	}

	return handle.Install(ctx, peerHandle)
}

func (c *Controller) setNetworkEnabled(ctx context.Context, healthy bool) {
	resource := c.Client.Resource("clusters", "")

	var current v1alpha1.Cluster
	if err := resource.Get(ctx, c.ClusterName, &current); err != nil {
		c.Logger.Error(err, "fetching cluster before network status update", "cluster", c.ClusterName)
		return
	}

	if current.Status.NetworkEnabled == healthy {
		return
	}

	current.Status.NetworkEnabled = healthy

	var out v1alpha1.Cluster
	if err := resource.Update(ctx, c.ClusterName, &current, &out); err != nil {
		c.Logger.Error(err, "writing network status", "cluster", c.ClusterName)
	}
}
