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

// Package manager is the Controller Manager: a single process hosting the
// top-level controllers (Skylet-supervisor, Scheduler, Link), each on its
// own task with a shared watch-error recovery contract.
package manager

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/clustermanager"
	"github.com/skyshift/skyshift/pkg/controllers/link"
	"github.com/skyshift/skyshift/pkg/controllers/scheduler"
	"github.com/skyshift/skyshift/pkg/controllers/skylet"
	"github.com/skyshift/skyshift/pkg/informer"
	"github.com/skyshift/skyshift/pkg/managers/options"
)

// Manager runs the Skylet-supervisor, Scheduler and Link controllers.
type Manager struct {
	client  *client.Client
	logger  logr.Logger
	options options.Options

	mu       sync.Mutex
	skylets  map[string]context.CancelFunc
	skyletWG sync.WaitGroup
}

// New builds a Manager against the given API client.
func New(c *client.Client, opts options.Options, logger logr.Logger) *Manager {
	return &Manager{
		client:  c,
		logger:  logger,
		options: opts,
		skylets: make(map[string]context.CancelFunc),
	}
}

// Run starts the Skylet-supervisor, Scheduler and Link controllers,
// blocking until ctx is cancelled or one of them fails.
func (m *Manager) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return m.runSkyletSupervisor(gctx) })
	group.Go(func() error { return scheduler.New(m.client).Run(gctx) })
	group.Go(func() error { return (&link.Controller{Client: m.client, Logger: m.logger.WithName("link")}).Run(gctx) })

	err := group.Wait()

	m.skyletWG.Wait()

	if err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

// runSkyletSupervisor watches Cluster objects, spawning a Skylet per
// cluster on ADD, terminating it on DELETE, and terminating-then-respawning
// it whenever the cluster's status transitions to ERROR so capability
// changes following a reconnect are picked up.
func (m *Manager) runSkyletSupervisor(ctx context.Context) error {
	inf := informer.New[v1alpha1.Cluster, *v1alpha1.Cluster](
		m.client.Resource("clusters", ""),
		informer.Handlers[v1alpha1.Cluster]{
			OnAdd:    func(cl *v1alpha1.Cluster) { m.spawn(ctx, cl) },
			OnUpdate: func(_, cl *v1alpha1.Cluster) { m.onUpdate(ctx, cl) },
			OnDelete: func(cl *v1alpha1.Cluster) { m.terminate(cl.Metadata.Name) },
		},
		client.WatcherOptions{},
	)

	return inf.Run(ctx)
}

func (m *Manager) onUpdate(ctx context.Context, cl *v1alpha1.Cluster) {
	if cl.Status.Status != v1alpha1.ClusterPhaseError {
		return
	}

	m.terminate(cl.Metadata.Name)
	m.spawn(ctx, cl)
}

func (m *Manager) spawn(ctx context.Context, cl *v1alpha1.Cluster) {
	m.mu.Lock()
	if _, running := m.skylets[cl.Metadata.Name]; running {
		m.mu.Unlock()
		return
	}

	skyletCtx, cancel := context.WithCancel(ctx)
	m.skylets[cl.Metadata.Name] = cancel
	m.mu.Unlock()

	adapter, err := clustermanager.New(cl.Spec)
	if err != nil {
		m.logger.Error(err, "constructing cluster adapter", "cluster", cl.Metadata.Name)
		m.terminate(cl.Metadata.Name)

		return
	}

	sk := skylet.New(m.client, cl.Metadata.Name, adapter, m.options, m.logger)

	m.skyletWG.Add(1)

	go func() {
		defer m.skyletWG.Done()

		if err := sk.Run(skyletCtx); err != nil && skyletCtx.Err() == nil {
			m.logger.Error(err, "skylet exited", "cluster", cl.Metadata.Name)
		}
	}()
}

func (m *Manager) terminate(clusterName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancel, ok := m.skylets[clusterName]
	if !ok {
		return
	}

	cancel()
	delete(m.skylets, clusterName)
}
