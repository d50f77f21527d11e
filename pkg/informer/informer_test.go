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

package informer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/informer"
)

// fakeAPI serves one static list and one scripted watch stream over
// cluster-scoped Cluster objects, enough to exercise an Informer's
// initial list, reflect and consume stages without a real server.
type fakeAPI struct {
	mu      sync.Mutex
	watched bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("watch") != "true" {
		fmt.Fprintf(w, `{"items":[{"kind":"Cluster","metadata":{"name":"alpha"},"spec":{"manager":"kubernetes"}}]}`)

		return
	}

	f.mu.Lock()
	f.watched = true
	f.mu.Unlock()

	flusher := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)

	line, _ := json.Marshal(map[string]any{
		"event_type": "ADD",
		"object": map[string]any{
			"kind":     "Cluster",
			"metadata": map[string]any{"name": "beta"},
			"spec":     map[string]any{"manager": "slurm"},
		},
	})
	w.Write(append(line, '\n'))
	flusher.Flush()

	<-r.Context().Done()
}

func TestInformerPopulatesCacheFromListAndWatch(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	c := client.New(client.Options{BaseURL: ts.URL})
	resource := c.Resource("clusters", "")

	var (
		mu   sync.Mutex
		seen []string
	)

	inf := informer.New[v1alpha1.Cluster, *v1alpha1.Cluster](resource, informer.Handlers[v1alpha1.Cluster]{
		OnAdd: func(obj *v1alpha1.Cluster) {
			mu.Lock()
			seen = append(seen, obj.Metadata.Name)
			mu.Unlock()
		},
	}, client.WatcherOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- inf.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := inf.Get(informer.Key("", "alpha"))
		return ok
	}, time.Second, 10*time.Millisecond, "initial list never populated the cache")

	require.Eventually(t, func() bool {
		_, ok := inf.Get(informer.Key("", "beta"))
		return ok
	}, time.Second, 10*time.Millisecond, "watched ADD never reached the cache")

	cache := inf.GetCache()
	require.Len(t, cache, 2)

	mu.Lock()
	require.Contains(t, seen, "beta")
	mu.Unlock()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestKeyNamespacing(t *testing.T) {
	t.Parallel()

	require.Equal(t, "alpha", informer.Key("", "alpha"))
	require.Equal(t, "team-a/train", informer.Key("team-a", "train"))
}
