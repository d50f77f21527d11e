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

package kv_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyshift/skyshift/pkg/kv"
)

func newStore(t *testing.T) *kv.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "skyshift.db")

	store, err := kv.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestPutGet(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	r1, err := store.Put(ctx, []byte("/a"), []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r1)

	value, revision, found, err := store.Get(ctx, []byte("/a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v1"), value)
	assert.Equal(t, r1, revision)

	r2, err := store.Put(ctx, []byte("/a"), []byte("v2"))
	require.NoError(t, err)
	assert.Greater(t, r2, r1)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	_, _, found, err := store.Get(context.Background(), []byte("/missing"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCompareAndPutConflict(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	r1, err := store.Put(ctx, []byte("/a"), []byte("v1"))
	require.NoError(t, err)

	_, err = store.CompareAndPut(ctx, []byte("/a"), []byte("v2"), r1)
	require.NoError(t, err)

	_, err = store.CompareAndPut(ctx, []byte("/a"), []byte("v3"), r1)
	require.ErrorIs(t, err, kv.ErrConflict)
}

func TestCompareAndPutRequiresAbsenceForCreate(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	_, err := store.CompareAndPut(ctx, []byte("/a"), []byte("v1"), 0)
	require.NoError(t, err)

	_, err = store.CompareAndPut(ctx, []byte("/a"), []byte("v2"), 0)
	require.ErrorIs(t, err, kv.ErrConflict)
}

func TestRangeOrdering(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	for _, k := range []string{"/ns/b", "/ns/a", "/ns/c", "/other/x"} {
		_, err := store.Put(ctx, []byte(k), []byte("v"))
		require.NoError(t, err)
	}

	results, err := store.Range(ctx, []byte("/ns/"))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "/ns/a", string(results[0].Key))
	assert.Equal(t, "/ns/b", string(results[1].Key))
	assert.Equal(t, "/ns/c", string(results[2].Key))
}

func TestDeleteAndNotFound(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, []byte("/a"), []byte("v1"))
	require.NoError(t, err)

	_, err = store.Delete(ctx, []byte("/a"))
	require.NoError(t, err)

	_, _, found, err := store.Get(ctx, []byte("/a"))
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.Delete(ctx, []byte("/a"))
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestDeleteRange(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	for _, k := range []string{"/ns/a", "/ns/b", "/other/x"} {
		_, err := store.Put(ctx, []byte(k), []byte("v"))
		require.NoError(t, err)
	}

	count, err := store.DeleteRange(ctx, []byte("/ns/"))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	remaining, err := store.Range(ctx, []byte("/"))
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestWatchAddUpdateDelete(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, stop := store.Watch(ctx, []byte("/ns/"), 0)
	defer stop()

	_, err := store.Put(context.Background(), []byte("/ns/hello"), []byte("v1"))
	require.NoError(t, err)

	_, err = store.Put(context.Background(), []byte("/ns/hello"), []byte("v2"))
	require.NoError(t, err)

	_, err = store.Delete(context.Background(), []byte("/ns/hello"))
	require.NoError(t, err)

	add := <-events
	assert.Equal(t, kv.EventAdd, add.Type())
	assert.Equal(t, []byte("v1"), add.Value)

	update := <-events
	assert.Equal(t, kv.EventUpdate, update.Type())
	assert.Equal(t, []byte("v2"), update.Value)

	del := <-events
	assert.Equal(t, kv.EventDelete, del.Type())
	assert.Equal(t, []byte("v2"), del.Value)
}

func TestWatchIgnoresNonMatchingPrefix(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	events, stop := store.Watch(ctx, []byte("/ns/"), 0)
	defer stop()

	_, err := store.Put(context.Background(), []byte("/other/hello"), []byte("v1"))
	require.NoError(t, err)

	select {
	case e := <-events:
		t.Fatalf("unexpected event: %+v", e)
	case <-ctx.Done():
	}
}

func TestWatchResumesFromRevision(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	r1, err := store.Put(ctx, []byte("/ns/a"), []byte("v1"))
	require.NoError(t, err)

	_, err = store.Put(ctx, []byte("/ns/b"), []byte("v2"))
	require.NoError(t, err)

	watchCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	events, stop := store.Watch(watchCtx, []byte("/ns/"), r1)
	defer stop()

	e := <-events
	assert.Equal(t, "/ns/b", string(e.Key))
}
