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

// Package link is the top-level Link controller: on ADD it establishes the
// pairwise mesh connection between the two referenced clusters and
// records the outcome on Link.status.phase; on DELETE it tears the
// connection down, with no status update since the object is gone.
package link

import (
	"context"

	"github.com/go-logr/logr"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/clustermanager"
	"github.com/skyshift/skyshift/pkg/informer"
)

// Controller is the top-level Link controller.
type Controller struct {
	Client *client.Client
	Logger logr.Logger
}

// Run starts the Link informer and reconciles from its callbacks until
// ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	inf := informer.New[v1alpha1.Link, *v1alpha1.Link](
		c.Client.Resource("links", ""),
		informer.Handlers[v1alpha1.Link]{
			OnAdd:    func(l *v1alpha1.Link) { c.establish(ctx, l) },
			OnDelete: func(l *v1alpha1.Link) { c.teardown(ctx, l) },
		},
		client.WatcherOptions{},
	)

	return inf.Run(ctx)
}

func (c *Controller) establish(ctx context.Context, link *v1alpha1.Link) {
	a, b := link.Spec.UnorderedPair()

	handleA, handleB, err := c.handles(ctx, a, b)
	if err == nil {
		err = handleA.Install(ctx, handleB)
	}

	resource := c.Client.Resource("links", "")

	var current v1alpha1.Link
	if getErr := resource.Get(ctx, link.Metadata.Name, &current); getErr != nil {
		c.Logger.Error(getErr, "fetching link before status update", "link", link.Metadata.Name)
		return
	}

	if err != nil {
		c.Logger.Error(err, "establishing link", "link", link.Metadata.Name, "cluster_a", a, "cluster_b", b)
		current.Status.Phase = v1alpha1.LinkPhaseFailed
	} else {
		current.Status.Phase = v1alpha1.LinkPhaseActive
	}

	var out v1alpha1.Link
	if err := resource.Update(ctx, current.Metadata.Name, &current, &out); err != nil {
		c.Logger.Error(err, "writing link status", "link", current.Metadata.Name)
	}
}

func (c *Controller) teardown(ctx context.Context, link *v1alpha1.Link) {
	a, b := link.Spec.UnorderedPair()

	handleA, handleB, err := c.handles(ctx, a, b)
	if err != nil {
		c.Logger.Error(err, "resolving clusters for link teardown", "cluster_a", a, "cluster_b", b)
		return
	}

	if err := handleA.Teardown(ctx, handleB); err != nil {
		c.Logger.Error(err, "tearing down link", "cluster_a", a, "cluster_b", b)
	}
}

func (c *Controller) handles(ctx context.Context, a, b string) (clustermanager.NetworkHandle, clustermanager.NetworkHandle, error) {
	handleA, err := c.handle(ctx, a)
	if err != nil {
		return nil, nil, err
	}

	handleB, err := c.handle(ctx, b)
	if err != nil {
		return nil, nil, err
	}

	return handleA, handleB, nil
}

func (c *Controller) handle(ctx context.Context, clusterName string) (clustermanager.NetworkHandle, error) {
	var cl v1alpha1.Cluster
	if err := c.Client.Resource("clusters", "").Get(ctx, clusterName, &cl); err != nil {
		return nil, err
	}

	adapter, err := clustermanager.New(cl.Spec)
	if err != nil {
		return nil, err
	}

	return adapter.Network(), nil
}
