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

// Package informer mirrors one kind's collection into an in-memory cache
// kept current by a reconnecting watch, the shape controllers build their
// reconcile loops against instead of polling the API server directly.
package informer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
)

// AddFunc, UpdateFunc and DeleteFunc are the callback shapes an Informer
// consumer registers. They run on the event-controller goroutine and must
// not block indefinitely; long work belongs on a worker queue the caller
// owns.
type AddFunc[T any] func(obj *T)
type UpdateFunc[T any] func(old, obj *T)
type DeleteFunc[T any] func(obj *T)

// Handlers bundles the three callbacks; any of them may be nil.
type Handlers[T any] struct {
	OnAdd    AddFunc[T]
	OnUpdate UpdateFunc[T]
	OnDelete DeleteFunc[T]
}

// queueCapacity bounds the reflector-to-event-controller channel. The
// reflector blocks once it is full, which back-pressures the watch
// connection rather than growing memory without limit.
const queueCapacity = 1024

// Informer mirrors a Resource's collection into a cache keyed by Key
// (namespace and name) and fans out ADD/UPDATE/DELETE callbacks in watch
// order. PT is the pointer type of T, constrained to the envelope every
// v1alpha1 kind shares, so the cache can key itself on metadata without
// reflection.
type Informer[T any, PT interface {
	*T
	GetMetadata() *v1alpha1.Metadata
}] struct {
	resource *client.Resource
	handlers Handlers[T]
	options  client.WatcherOptions

	mu    sync.RWMutex
	cache map[string]*T
}

// New returns an Informer over resource's whole collection.
func New[T any, PT interface {
	*T
	GetMetadata() *v1alpha1.Metadata
}](resource *client.Resource, handlers Handlers[T], options client.WatcherOptions) *Informer[T, PT] {
	return &Informer[T, PT]{
		resource: resource,
		handlers: handlers,
		options:  options,
		cache:    make(map[string]*T),
	}
}

// GetCache returns a shallow-copied snapshot of the cache. Callers must
// not mutate the returned objects.
func (inf *Informer[T, PT]) GetCache() map[string]*T {
	inf.mu.RLock()
	defer inf.mu.RUnlock()

	out := make(map[string]*T, len(inf.cache))
	for k, v := range inf.cache {
		out[k] = v
	}

	return out
}

// Get returns one cached object by key (see Key).
func (inf *Informer[T, PT]) Get(key string) (*T, bool) {
	inf.mu.RLock()
	defer inf.mu.RUnlock()

	obj, ok := inf.cache[key]

	return obj, ok
}

// Key is the cache key an Informer assigns an object: "namespace/name" for
// a namespaced object, "name" for a cluster-scoped one. Namespaced kinds
// watched across every namespace would otherwise collide on same-named
// objects in different namespaces.
func Key(namespace, name string) string {
	if namespace == "" {
		return name
	}

	return namespace + "/" + name
}

// Run performs the initial list, then starts the reflector and event
// controller, blocking until ctx is cancelled or either task exits with
// an error. It always returns once both tasks have stopped.
func (inf *Informer[T, PT]) Run(ctx context.Context) error {
	if err := inf.initialList(ctx); err != nil {
		return fmt.Errorf("initial list: %w", err)
	}

	queue := make(chan client.Event, queueCapacity)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return inf.reflect(gctx, queue)
	})

	group.Go(func() error {
		return inf.consume(gctx, queue)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

// initialList populates the cache before the reflector starts, so the
// first reflected event is never racing an empty cache.
func (inf *Informer[T, PT]) initialList(ctx context.Context) error {
	var list struct {
		Items []T `json:"items"`
	}

	if err := inf.resource.List(ctx, false, &list); err != nil {
		return err
	}

	inf.mu.Lock()
	defer inf.mu.Unlock()

	for i := range list.Items {
		item := list.Items[i]
		meta := PT(&item).GetMetadata()
		inf.cache[Key(meta.Namespace, meta.Name)] = &item
	}

	return nil
}

// reflect runs the reconnecting watch and enqueues every event it
// receives, exiting when the watch channel closes (ctx cancellation or
// retry budget exhaustion) or the queue's consumer signals an error via
// gctx.
func (inf *Informer[T, PT]) reflect(ctx context.Context, queue chan<- client.Event) error {
	defer close(queue)

	events := inf.resource.Watch(inf.options).Run(ctx)

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}

			select {
			case queue <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// consume drains the queue in order, updating the cache and invoking
// callbacks. On DELETE the cache entry is removed before the callback
// fires; on UPDATE the callback receives both the old and new object.
func (inf *Informer[T, PT]) consume(ctx context.Context, queue <-chan client.Event) error {
	for {
		select {
		case e, ok := <-queue:
			if !ok {
				return nil
			}

			inf.handle(e)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (inf *Informer[T, PT]) handle(e client.Event) {
	var obj T

	if err := json.Unmarshal(e.Object, &obj); err != nil {
		// A malformed event body is a server-side bug, not something a
		// consumer's callback can act on; drop it rather than panic the
		// event controller.
		return
	}

	meta := PT(&obj).GetMetadata()
	key := Key(meta.Namespace, meta.Name)

	switch string(e.Type) {
	case "DELETE":
		inf.mu.Lock()
		old := inf.cache[key]
		delete(inf.cache, key)
		inf.mu.Unlock()

		if inf.handlers.OnDelete != nil {
			if old == nil {
				old = &obj
			}

			inf.handlers.OnDelete(old)
		}
	case "UPDATE":
		inf.mu.Lock()
		old := inf.cache[key]
		inf.cache[key] = &obj
		inf.mu.Unlock()

		if inf.handlers.OnUpdate != nil {
			inf.handlers.OnUpdate(old, &obj)
		}
	default: // ADD
		inf.mu.Lock()
		inf.cache[key] = &obj
		inf.mu.Unlock()

		if inf.handlers.OnAdd != nil {
			inf.handlers.OnAdd(&obj)
		}
	}
}
