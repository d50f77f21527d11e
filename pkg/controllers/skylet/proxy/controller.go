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

// Package proxy is the Skylet's Proxy sub-controller: it watches
// Endpoints and keeps this cluster's side of the service mesh in sync
// with the peer clusters recorded on it. The mesh membership operation
// itself is the same pairwise NetworkHandle the Network and Link
// controllers use; only which peers to reconcile against differs here.
package proxy

import (
	"context"

	"github.com/go-logr/logr"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/clustermanager"
	"github.com/skyshift/skyshift/pkg/informer"
)

// Controller is the Proxy sub-controller for one cluster.
type Controller struct {
	Client      *client.Client
	Adapter     clustermanager.Adapter
	ClusterName string
	Logger      logr.Logger
}

// Run starts the Endpoints informer and reconciles from its callbacks
// until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	inf := informer.New[v1alpha1.Endpoints, *v1alpha1.Endpoints](
		c.Client.ResourceAllNamespaces("endpoints"),
		informer.Handlers[v1alpha1.Endpoints]{
			OnAdd:    func(e *v1alpha1.Endpoints) { c.reconcile(ctx, e) },
			OnUpdate: func(_, e *v1alpha1.Endpoints) { c.reconcile(ctx, e) },
			OnDelete: func(e *v1alpha1.Endpoints) { c.unexpose(ctx, e) },
		},
		client.WatcherOptions{},
	)

	return inf.Run(ctx)
}

// reconcile brings this cluster's mesh membership for e's peers up to
// date: the primary cluster imports every other cluster's endpoints, a
// secondary cluster exports its own to the primary. Both directions use
// the same symmetric NetworkHandle.Install operation.
func (c *Controller) reconcile(ctx context.Context, e *v1alpha1.Endpoints) {
	if _, ours := e.Status.Clusters[c.ClusterName]; !ours {
		return
	}

	handle := c.Adapter.Network()

	for peerName := range e.Status.Clusters {
		if peerName == c.ClusterName {
			continue
		}

		peerHandle, err := c.peerHandle(ctx, peerName)
		if err != nil {
			c.Logger.Error(err, "resolving peer for mesh export/import", "cluster", c.ClusterName, "peer", peerName)
			continue
		}

		if err := handle.Install(ctx, peerHandle); err != nil {
			c.Logger.Error(err, "syncing service mesh membership", "cluster", c.ClusterName, "peer", peerName, "endpoints", e.Metadata.Name)
		}
	}
}

func (c *Controller) unexpose(ctx context.Context, e *v1alpha1.Endpoints) {
	handle := c.Adapter.Network()

	for peerName := range e.Status.Clusters {
		if peerName == c.ClusterName {
			continue
		}

		peerHandle, err := c.peerHandle(ctx, peerName)
		if err != nil {
			continue
		}

		if err := handle.Teardown(ctx, peerHandle); err != nil {
			c.Logger.Error(err, "unexposing service mesh membership", "cluster", c.ClusterName, "peer", peerName)
		}
	}
}

func (c *Controller) peerHandle(ctx context.Context, peerName string) (clustermanager.NetworkHandle, error) {
	var peer v1alpha1.Cluster
	if err := c.Client.Resource("clusters", "").Get(ctx, peerName, &peer); err != nil {
		return nil, err
	}

	peerAdapter, err := clustermanager.New(peer.Spec)
	if err != nil {
		return nil, err
	}

	return peerAdapter.Network(), nil
}
