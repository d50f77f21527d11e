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

package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
)

// fakeAPI is just enough of the wire protocol for a Scheduler's three
// informers (Jobs, Clusters, FilterPolicies) to complete their initial
// list, receive one watched Job ADD event, and accept the scheduler's
// resulting Update.
type fakeAPI struct {
	cluster v1alpha1.Cluster
	job     v1alpha1.Job

	updates chan v1alpha1.Job
}

func newFakeAPI(cluster v1alpha1.Cluster, job v1alpha1.Job) *fakeAPI {
	return &fakeAPI{cluster: cluster, job: job, updates: make(chan v1alpha1.Job, 8)}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	watch := r.URL.Query().Get("watch") == "true"

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/clusters" && !watch:
		writeList(w, []v1alpha1.Cluster{f.cluster})
	case r.Method == http.MethodGet && r.URL.Path == "/clusters" && watch:
		block(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/jobs" && !watch:
		writeList(w, []v1alpha1.Job{})
	case r.Method == http.MethodGet && r.URL.Path == "/jobs" && watch:
		streamAdd(w, r, f.job)
	case r.Method == http.MethodGet && r.URL.Path == "/filterpolicies" && !watch:
		writeList(w, []v1alpha1.FilterPolicy{})
	case r.Method == http.MethodGet && r.URL.Path == "/filterpolicies" && watch:
		block(w, r)
	case r.Method == http.MethodPut && r.URL.Path == "/default/jobs/train":
		data, _ := io.ReadAll(r.Body)

		var updated v1alpha1.Job
		_ = json.Unmarshal(data, &updated)
		updated.Metadata.ResourceVersion = 2

		f.updates <- updated

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(updated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeList[T any](w http.ResponseWriter, items []T) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Items []T `json:"items"`
	}{Items: items})
}

func block(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.(http.Flusher).Flush()
	<-r.Context().Done()
}

func streamAdd(w http.ResponseWriter, r *http.Request, job v1alpha1.Job) {
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)

	line, _ := json.Marshal(struct {
		EventType string       `json:"event_type"`
		Object    v1alpha1.Job `json:"object"`
	}{EventType: "ADD", Object: job})

	w.Write(append(line, '\n'))
	flusher.Flush()

	<-r.Context().Done()
}

func TestSchedulerSchedulesPendingJobOntoFittingCluster(t *testing.T) {
	t.Parallel()

	cluster := v1alpha1.Cluster{
		Kind:     string(v1alpha1.KindCluster),
		Metadata: v1alpha1.Metadata{Name: "cluster-a"},
		Status: v1alpha1.ClusterStatus{
			Status: v1alpha1.ClusterPhaseReady,
			AllocatableCapacity: v1alpha1.NodeResources{
				"node-1": {v1alpha1.ResourceCPUs: 8},
			},
		},
	}

	job := v1alpha1.Job{
		Kind:     string(v1alpha1.KindJob),
		Metadata: v1alpha1.Metadata{Name: "train", Namespace: "default"},
		Spec: v1alpha1.JobSpec{
			Image:     "example.com/train:latest",
			Replicas:  1,
			Resources: v1alpha1.ResourceList{v1alpha1.ResourceCPUs: 1},
		},
	}

	api := newFakeAPI(cluster, job)
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	c := client.New(client.Options{BaseURL: ts.URL})
	s := New(c)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go s.Run(ctx) //nolint:errcheck

	select {
	case updated := <-api.updates:
		require.Equal(t, v1alpha1.JobPhaseActive, updated.Status.Status)
		require.Equal(t, map[v1alpha1.TaskState]int{v1alpha1.TaskStateInit: 1}, updated.Status.ReplicaStatus["cluster-a"])
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never wrote back a scheduling decision")
	}
}
