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

// Package skylet is the per-cluster supervisor: it instantiates and runs
// the six sub-controllers (cluster, job, flow, network, endpoints, proxy)
// in parallel, none of them sharing mutable state with its siblings
// except through the API server.
package skylet

import (
	"context"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/clustermanager"
	"github.com/skyshift/skyshift/pkg/controllers/skylet/cluster"
	"github.com/skyshift/skyshift/pkg/controllers/skylet/endpoints"
	"github.com/skyshift/skyshift/pkg/controllers/skylet/flow"
	"github.com/skyshift/skyshift/pkg/controllers/skylet/job"
	"github.com/skyshift/skyshift/pkg/controllers/skylet/network"
	"github.com/skyshift/skyshift/pkg/controllers/skylet/proxy"
	"github.com/skyshift/skyshift/pkg/managers/options"
)

// subController is the common shape every sub-controller satisfies.
type subController interface {
	Run(ctx context.Context) error
}

// Skylet supervises one cluster's six sub-controllers.
type Skylet struct {
	ClusterName string

	subControllers []subController
}

// New builds a Skylet for clusterName, wiring every sub-controller against
// the given adapter.
func New(c *client.Client, clusterName string, adapter clustermanager.Adapter, opts options.Options, logger logr.Logger) *Skylet {
	named := logger.WithValues("cluster", clusterName)

	return &Skylet{
		ClusterName: clusterName,
		subControllers: []subController{
			&cluster.Controller{Client: c, Adapter: adapter, ClusterName: clusterName, Logger: named, Interval: opts.ClusterHeartbeatInterval},
			&job.Controller{Client: c, Adapter: adapter, ClusterName: clusterName, Logger: named, Interval: opts.JobStatusInterval},
			&flow.Controller{Client: c, Adapter: adapter, ClusterName: clusterName, Logger: named},
			&network.Controller{Client: c, Adapter: adapter, ClusterName: clusterName, Logger: named, Interval: opts.NetworkVerifyInterval},
			&endpoints.Controller{Client: c, ClusterName: clusterName, Logger: named, Interval: opts.JobStatusInterval},
			&proxy.Controller{Client: c, Adapter: adapter, ClusterName: clusterName, Logger: named},
		},
	}
}

// Run starts every sub-controller and blocks until ctx is cancelled or one
// of them fails.
func (s *Skylet) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	for _, sc := range s.subControllers {
		sc := sc
		group.Go(func() error { return sc.Run(gctx) })
	}

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}
