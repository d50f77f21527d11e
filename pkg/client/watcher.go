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

package client

import (
	"context"
	"time"
)

const (
	defaultReconnectBackoff = 3 * time.Second
	defaultMaxRetries       = 10
)

// WatcherOptions configures reconnect behaviour.
type WatcherOptions struct {
	// Backoff is the delay between a dropped connection and the next
	// reconnect attempt.
	Backoff time.Duration

	// MaxRetries caps consecutive reconnect failures before the watcher
	// gives up and closes its event channel. Zero means defaultMaxRetries.
	MaxRetries int
}

// Watcher wraps Resource's raw watch with reconnection: on a transport
// error it waits Backoff and reconnects, up to MaxRetries consecutive
// failures, resetting the failure count on every event it successfully
// delivers.
type Watcher struct {
	resource *Resource
	name     string
	options  WatcherOptions
}

// Watch returns a Watcher over the resource's whole collection.
func (r *Resource) Watch(options WatcherOptions) *Watcher {
	return &Watcher{resource: r, options: options}
}

// WatchOne returns a Watcher scoped to a single object.
func (r *Resource) WatchOne(name string, options WatcherOptions) *Watcher {
	return &Watcher{resource: r, name: name, options: options}
}

// Run starts the watcher, returning a channel of events that stays open
// across reconnects until ctx is cancelled or the retry budget is
// exhausted.
func (w *Watcher) Run(ctx context.Context) <-chan Event {
	backoff := w.options.Backoff
	if backoff <= 0 {
		backoff = defaultReconnectBackoff
	}

	maxRetries := w.options.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	out := make(chan Event)

	go func() {
		defer close(out)

		failures := 0

		for {
			if ctx.Err() != nil {
				return
			}

			events, errs, err := w.resource.watchRaw(ctx, w.name)
			if err != nil {
				failures++

				if failures > maxRetries {
					return
				}

				if !sleep(ctx, backoff) {
					return
				}

				continue
			}

			delivered := w.drain(ctx, out, events, errs)
			if delivered {
				failures = 0
			} else {
				failures++
			}

			if failures > maxRetries {
				return
			}

			if !sleep(ctx, backoff) {
				return
			}
		}
	}()

	return out
}

// drain forwards events until the connection drops or ctx is cancelled,
// reporting whether at least one event was delivered (used to reset the
// consecutive-failure counter on an otherwise-healthy connection that
// later drops).
func (w *Watcher) drain(ctx context.Context, out chan<- Event, events <-chan Event, errs <-chan error) bool {
	delivered := false

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return delivered
			}

			select {
			case out <- e:
				delivered = true
			case <-ctx.Done():
				return delivered
			}
		case <-errs:
			return delivered
		case <-ctx.Done():
			return delivered
		}
	}
}

// sleep waits for d or ctx cancellation, reporting whether it completed
// without being cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
