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

// Package kv is the embedded, strongly-consistent ordered key-value store
// every other Skyshift component is built on: objects live under keys
// assigned by the registry/server, revisions are a single monotonic
// counter, and watch is an in-process broadcast of committed
// transactions layered over the underlying B+tree (see spec.md §4.1 —
// the store need not replicate outside one host, so there is no raft
// layer here).
package kv

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

//nolint:gochecknoglobals
var (
	bucketObjects   = []byte("objects")
	bucketRevisions = []byte("revisions")
	bucketEvents    = []byte("events")
	bucketMeta      = []byte("meta")

	metaKeyRevision = []byte("revision")
)

// KeyValue is one entry returned by Range.
type KeyValue struct {
	Key      []byte
	Value    []byte
	Revision uint64
}

// Store is an embedded ordered key-value store with watch support, backed
// by a single bbolt database file.
type Store struct {
	db *bolt.DB

	watchers *watcherSet
}

// Open creates or opens the database file at path, establishing the
// buckets the store needs.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening kv store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketObjects, bucketRevisions, bucketEvents, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		return nil
	})
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Store{
		db:       db,
		watchers: newWatcherSet(),
	}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func revisionKey(r uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, r)

	return buf
}

func revisionFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}

// currentRevision returns the revision last assigned to key, and 0 if the
// key has never been written.
func currentRevision(tx *bolt.Tx, key []byte) uint64 {
	raw := tx.Bucket(bucketRevisions).Get(key)
	if raw == nil {
		return 0
	}

	return revisionFromKey(raw)
}

func nextRevision(tx *bolt.Tx) (uint64, error) {
	meta := tx.Bucket(bucketMeta)

	raw := meta.Get(metaKeyRevision)

	var current uint64
	if raw != nil {
		current = revisionFromKey(raw)
	}

	current++

	if err := meta.Put(metaKeyRevision, revisionKey(current)); err != nil {
		return 0, err
	}

	return current, nil
}

// Put unconditionally writes value at key, returning the assigned
// revision. The revision is strictly greater than any previously assigned
// to this key.
func (s *Store) Put(ctx context.Context, key, value []byte) (uint64, error) {
	return s.put(ctx, key, value, nil)
}

// CompareAndPut writes value at key iff the key's current revision equals
// expectedRevision (0 meaning "must not exist yet"). On mismatch it
// returns a *ConflictError wrapping ErrConflict carrying the key's actual
// current revision.
func (s *Store) CompareAndPut(ctx context.Context, key, value []byte, expectedRevision uint64) (uint64, error) {
	return s.put(ctx, key, value, &expectedRevision)
}

func (s *Store) put(ctx context.Context, key, value []byte, expectedRevision *uint64) (uint64, error) {
	var event Event

	var revision uint64

	err := s.db.Update(func(tx *bolt.Tx) error {
		prev := currentRevision(tx, key)

		if expectedRevision != nil && prev != *expectedRevision {
			return &ConflictError{Key: append([]byte(nil), key...), CurrentRevision: prev}
		}

		r, err := nextRevision(tx)
		if err != nil {
			return err
		}

		revision = r

		if err := tx.Bucket(bucketObjects).Put(key, value); err != nil {
			return err
		}

		if err := tx.Bucket(bucketRevisions).Put(key, revisionKey(revision)); err != nil {
			return err
		}

		event = Event{
			Op:           OpPut,
			Key:          append([]byte(nil), key...),
			Value:        append([]byte(nil), value...),
			Revision:     revision,
			PrevRevision: prev,
		}

		data, err := encodeEvent(event)
		if err != nil {
			return err
		}

		return tx.Bucket(bucketEvents).Put(revisionKey(revision), data)
	})
	if err != nil {
		return 0, err
	}

	s.watchers.broadcast(event)

	return revision, nil
}

// Get returns the current value and revision for key. found is false if
// the key does not exist.
func (s *Store) Get(ctx context.Context, key []byte) (value []byte, revision uint64, found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketObjects).Get(key)
		if raw == nil {
			return nil
		}

		found = true
		value = append([]byte(nil), raw...)
		revision = currentRevision(tx, key)

		return nil
	})

	return value, revision, found, err
}

// Range returns every key/value pair whose key has the given prefix, in
// key order.
func (s *Store) Range(ctx context.Context, prefix []byte) ([]KeyValue, error) {
	var out []KeyValue

	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketObjects).Cursor()

		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			out = append(out, KeyValue{
				Key:      append([]byte(nil), k...),
				Value:    append([]byte(nil), v...),
				Revision: currentRevision(tx, k),
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Delete removes key, returning the revision assigned to the deletion
// event. Returns ErrNotFound if the key does not exist.
func (s *Store) Delete(ctx context.Context, key []byte) (uint64, error) {
	var event Event

	var revision uint64

	err := s.db.Update(func(tx *bolt.Tx) error {
		prevValue := tx.Bucket(bucketObjects).Get(key)
		if prevValue == nil {
			return ErrNotFound
		}

		prev := currentRevision(tx, key)

		r, err := nextRevision(tx)
		if err != nil {
			return err
		}

		revision = r

		if err := tx.Bucket(bucketObjects).Delete(key); err != nil {
			return err
		}

		if err := tx.Bucket(bucketRevisions).Delete(key); err != nil {
			return err
		}

		event = Event{
			Op:           OpDelete,
			Key:          append([]byte(nil), key...),
			Value:        append([]byte(nil), prevValue...),
			Revision:     revision,
			PrevRevision: prev,
		}

		data, err := encodeEvent(event)
		if err != nil {
			return err
		}

		return tx.Bucket(bucketEvents).Put(revisionKey(revision), data)
	})
	if err != nil {
		return 0, err
	}

	s.watchers.broadcast(event)

	return revision, nil
}

// DeleteRange removes every key with the given prefix, returning the
// count removed. Each deletion is its own event, in key order.
func (s *Store) DeleteRange(ctx context.Context, prefix []byte) (int, error) {
	keys, err := s.Range(ctx, prefix)
	if err != nil {
		return 0, err
	}

	count := 0

	for _, kv := range keys {
		if _, err := s.Delete(ctx, kv.Key); err != nil {
			return count, err
		}

		count++
	}

	return count, nil
}
