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

package kv

import (
	"bytes"
	"context"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// watchChannelSize bounds the per-watcher event buffer; a slow consumer
// blocks new events from being delivered to it (but never blocks other
// watchers or writers, since broadcast is non-blocking per watcher).
const watchChannelSize = 64

type watcher struct {
	id     uint64
	prefix []byte
	ch     chan Event
	done   chan struct{}
}

type watcherSet struct {
	mu       sync.Mutex
	nextID   uint64
	watchers map[uint64]*watcher
}

func newWatcherSet() *watcherSet {
	return &watcherSet{watchers: make(map[uint64]*watcher)}
}

// broadcast fans an event out to every registered watcher whose prefix
// matches. Delivery is best-effort: a watcher whose buffer is full drops
// the event rather than stall the writer that produced it.
func (w *watcherSet) broadcast(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, watcher := range w.watchers {
		if !bytes.HasPrefix(e.Key, watcher.prefix) {
			continue
		}

		select {
		case watcher.ch <- e:
		default:
		}
	}
}

func (w *watcherSet) register(prefix []byte) *watcher {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextID++

	wt := &watcher{
		id:     w.nextID,
		prefix: append([]byte(nil), prefix...),
		ch:     make(chan Event, watchChannelSize),
		done:   make(chan struct{}),
	}

	w.watchers[wt.id] = wt

	return wt
}

func (w *watcherSet) unregister(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if wt, ok := w.watchers[id]; ok {
		close(wt.done)
		delete(w.watchers, id)
	}
}

// CancelFunc stops a watch and releases its resources. It is safe to call
// more than once.
type CancelFunc func()

// Watch subscribes to every PUT/DELETE under prefix from fromRevision
// (exclusive) onward, replaying historical events from the store before
// switching to live delivery. fromRevision 0 means "from the beginning".
// The returned channel is closed when ctx is cancelled or the CancelFunc
// is called.
func (s *Store) Watch(ctx context.Context, prefix []byte, fromRevision uint64) (<-chan Event, CancelFunc) {
	out := make(chan Event, watchChannelSize)

	wt := s.watchers.register(prefix)

	history, latest := s.eventsSince(prefix, fromRevision)

	cancelled := make(chan struct{})

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			close(cancelled)
			s.watchers.unregister(wt.id)
		})
	}

	go func() {
		defer close(out)

		for _, e := range history {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			case <-cancelled:
				return
			}
		}

		for {
			select {
			case e, ok := <-wt.ch:
				if !ok {
					return
				}

				// Events the historical scan already delivered (revision
				// at or below the snapshot taken while registering) are
				// skipped to avoid double delivery.
				if e.Revision <= latest {
					continue
				}

				select {
				case out <- e:
				case <-ctx.Done():
					return
				case <-cancelled:
					return
				}
			case <-ctx.Done():
				return
			case <-cancelled:
				return
			case <-wt.done:
				return
			}
		}
	}()

	return out, cancel
}

// eventsSince scans the events bucket for every event under prefix with
// revision > fromRevision, and returns them along with the store's
// revision at the time of the scan (used by Watch to de-duplicate against
// live events delivered concurrently with registration).
func (s *Store) eventsSince(prefix []byte, fromRevision uint64) ([]Event, uint64) {
	var (
		history []Event
		latest  uint64
	)

	_ = s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta).Get(metaKeyRevision)
		if meta != nil {
			latest = revisionFromKey(meta)
		}

		cursor := tx.Bucket(bucketEvents).Cursor()

		for k, v := cursor.Seek(revisionKey(fromRevision + 1)); k != nil; k, v = cursor.Next() {
			e, err := decodeEvent(v)
			if err != nil {
				continue
			}

			if bytes.HasPrefix(e.Key, prefix) {
				history = append(history, e)
			}
		}

		return nil
	})

	return history, latest
}
