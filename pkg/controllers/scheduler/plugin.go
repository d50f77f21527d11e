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

// Package scheduler drives the filter -> score -> spread pipeline over a
// FIFO queue of pending Jobs, per the component design's scheduling pass.
package scheduler

import (
	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
)

// Status is a plugin's per-cluster verdict.
type Status string

const (
	StatusSuccess       Status = "SUCCESS"
	StatusUnschedulable Status = "UNSCHEDULABLE"
	StatusError         Status = "ERROR"
)

// Filterer is implemented by a plugin that participates in the filter
// stage: dropping clusters outright from a job's candidate set.
type Filterer interface {
	Filter(cluster *v1alpha1.Cluster, job *v1alpha1.Job) (Status, string)
}

// Scorer is implemented by a plugin that participates in the score
// stage: ranking surviving clusters.
type Scorer interface {
	Score(cluster *v1alpha1.Cluster, job *v1alpha1.Job) (float64, Status)
}

// Spreader is implemented by the (singular, designated) plugin that
// decides the cluster -> replica_count mapping.
type Spreader interface {
	Spread(clusters []*v1alpha1.Cluster, job *v1alpha1.Job) (map[string]int, Status)
}

// Plugin is satisfied by any subset of Filterer, Scorer and Spreader; the
// pipeline type-asserts each registered plugin against the stage it is
// running.
type Plugin any
