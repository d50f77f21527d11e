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
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/informer"
)

// queueCapacity bounds the pending-job queue; Enqueue blocks once full,
// back-pressuring the informer event controller that feeds it.
const queueCapacity = 4096

// Scheduler runs the filter -> score -> spread pipeline over a FIFO queue
// of pending Jobs, reading Cluster and FilterPolicy state from informer
// caches kept current by reconnecting watches.
type Scheduler struct {
	client *client.Client

	jobs     *informer.Informer[v1alpha1.Job, *v1alpha1.Job]
	clusters *informer.Informer[v1alpha1.Cluster, *v1alpha1.Cluster]
	policies *informer.Informer[v1alpha1.FilterPolicy, *v1alpha1.FilterPolicy]

	filterers []Filterer
	scorers   []Scorer
	spreader  Spreader

	mu     sync.Mutex
	queued map[string]bool
	queue  chan string
}

// New builds a Scheduler wired to c's Job, Cluster and FilterPolicy
// collections, registering the DefaultPlugin and ClusterAffinityPlugin.
func New(c *client.Client) *Scheduler {
	s := &Scheduler{
		client: c,
		queued: make(map[string]bool),
		queue:  make(chan string, queueCapacity),
	}

	def := DefaultPlugin{}
	affinity := ClusterAffinityPlugin{ListFilterPolicies: s.listFilterPolicies}

	s.filterers = []Filterer{def, affinity}
	s.scorers = []Scorer{def}
	s.spreader = def

	s.jobs = informer.New[v1alpha1.Job, *v1alpha1.Job](c.ResourceAllNamespaces("jobs"), informer.Handlers[v1alpha1.Job]{
		OnAdd:    s.onJobChanged,
		OnUpdate: func(_, obj *v1alpha1.Job) { s.onJobChanged(obj) },
	}, client.WatcherOptions{})

	s.clusters = informer.New[v1alpha1.Cluster, *v1alpha1.Cluster](
		c.Resource("clusters", ""), informer.Handlers[v1alpha1.Cluster]{}, client.WatcherOptions{})

	s.policies = informer.New[v1alpha1.FilterPolicy, *v1alpha1.FilterPolicy](
		c.ResourceAllNamespaces("filterpolicies"), informer.Handlers[v1alpha1.FilterPolicy]{}, client.WatcherOptions{})

	return s
}

// Run starts the Job, Cluster and FilterPolicy informers and the queue
// processing loop, blocking until ctx is cancelled or one of them fails.
func (s *Scheduler) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return s.jobs.Run(gctx) })
	group.Go(func() error { return s.clusters.Run(gctx) })
	group.Go(func() error { return s.policies.Run(gctx) })
	group.Go(func() error { return s.processQueue(gctx) })

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

// onJobChanged enqueues a job that has not yet been scheduled, or that a
// cluster has just reported evicted tasks for (failover): either case
// folds back into the same filter->score->spread pass, placement simply
// running again over whatever replica counts the job now shows.
func (s *Scheduler) onJobChanged(job *v1alpha1.Job) {
	if job.Status.Status != "" && !hasEvictedTasks(job) {
		return
	}

	s.enqueue(informer.Key(job.Metadata.Namespace, job.Metadata.Name))
}

// hasEvictedTasks reports whether any cluster has recorded an EVICTED
// replica for job, the trigger for rescheduling an already-placed job.
func hasEvictedTasks(job *v1alpha1.Job) bool {
	for _, states := range job.Status.ReplicaStatus {
		if states[v1alpha1.TaskStateEvicted] > 0 {
			return true
		}
	}

	return false
}

func (s *Scheduler) enqueue(key string) {
	s.mu.Lock()

	if s.queued[key] {
		s.mu.Unlock()
		return
	}

	s.queued[key] = true

	s.mu.Unlock()

	s.queue <- key
}

func (s *Scheduler) listFilterPolicies(namespace string) []*v1alpha1.FilterPolicy {
	cache := s.policies.GetCache()

	out := make([]*v1alpha1.FilterPolicy, 0, len(cache))

	for _, policy := range cache {
		if policy.Metadata.Namespace == namespace {
			out = append(out, policy)
		}
	}

	return out
}

// processQueue dequeues one job key at a time and runs a scheduling pass
// for it. A job can be re-enqueued while its own pass is in flight; the
// queued flag is cleared before the pass starts, not after.
func (s *Scheduler) processQueue(ctx context.Context) error {
	for {
		select {
		case key := <-s.queue:
			s.mu.Lock()
			delete(s.queued, key)
			s.mu.Unlock()

			s.schedulePass(ctx, key)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// schedulePass runs one filter -> score -> spread pass for the job named
// by key against a snapshot of the cluster cache, then persists the
// result. A job that disappeared from the cache before its pass ran (it
// was deleted) is silently dropped.
func (s *Scheduler) schedulePass(ctx context.Context, key string) {
	job, ok := s.jobs.Get(key)
	if !ok {
		return
	}

	job = job.DeepCopyObject().(*v1alpha1.Job) //nolint:forcetypeassert

	placement, err := s.schedule(job)
	if err != nil {
		job.Status.Status = v1alpha1.JobPhaseFailed
		job.Status.Conditions = append(job.Status.Conditions, failureCondition(err))
	} else {
		job.Status.Status = v1alpha1.JobPhaseActive
		job.Status.ReplicaStatus = make(map[string]map[v1alpha1.TaskState]int, len(placement))

		for cluster, count := range placement {
			job.Status.ReplicaStatus[cluster] = map[v1alpha1.TaskState]int{v1alpha1.TaskStateInit: count}
		}
	}

	var out v1alpha1.Job
	if err := s.client.Resource("jobs", job.Metadata.Namespace).Update(ctx, job.Metadata.Name, job, &out); err != nil {
		// The next informer event for this job (its own update, or any
		// later change) re-evaluates it; a transient write failure here
		// is not fatal to the scheduler itself.
		return
	}
}

// schedule runs the pipeline for one job: filter drops every cluster that
// any Filterer does not return SUCCESS for, score ranks survivors
// descending (ties broken by name for determinism), and spread asks the
// designated Spreader to place replicas across the ranked candidates.
func (s *Scheduler) schedule(job *v1alpha1.Job) (map[string]int, error) {
	candidates := make([]*v1alpha1.Cluster, 0)

	for _, cluster := range s.clusters.GetCache() {
		if cluster.IsError() {
			continue
		}

		if s.filter(cluster, job) {
			candidates = append(candidates, cluster)
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no cluster passed filtering for job %s/%s", job.Metadata.Namespace, job.Metadata.Name)
	}

	scores := make(map[string]float64, len(candidates))

	for _, cluster := range candidates {
		total, status := s.score(cluster, job)
		if status != StatusSuccess {
			continue
		}

		scores[cluster.Metadata.Name] = total
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if scores[a.Metadata.Name] != scores[b.Metadata.Name] {
			return scores[a.Metadata.Name] > scores[b.Metadata.Name]
		}

		return a.Metadata.Name < b.Metadata.Name
	})

	placement, status := s.spreader.Spread(candidates, job)
	if status != StatusSuccess {
		return nil, fmt.Errorf("no placement satisfies replica count %d for job %s/%s", job.Spec.Replicas, job.Metadata.Namespace, job.Metadata.Name)
	}

	return placement, nil
}

// filter reports whether every registered Filterer returns SUCCESS for
// cluster; any other status (UNSCHEDULABLE or ERROR) drops the cluster.
func (s *Scheduler) filter(cluster *v1alpha1.Cluster, job *v1alpha1.Job) bool {
	for _, f := range s.filterers {
		if status, _ := f.Filter(cluster, job); status != StatusSuccess {
			return false
		}
	}

	return true
}

// score sums every registered Scorer's verdict for cluster; a single
// Scorer reporting a non-SUCCESS status drops its contribution to zero
// rather than excluding the cluster (filtering already decided
// eligibility).
func (s *Scheduler) score(cluster *v1alpha1.Cluster, job *v1alpha1.Job) (float64, Status) {
	var total float64

	for _, scorer := range s.scorers {
		value, status := scorer.Score(cluster, job)
		if status != StatusSuccess {
			continue
		}

		total += value
	}

	return total, StatusSuccess
}

func failureCondition(err error) v1alpha1.Condition {
	return v1alpha1.Condition{
		Type:           "Scheduled",
		Status:         "False",
		TransitionTime: time.Now(),
		Message:        err.Error(),
	}
}
