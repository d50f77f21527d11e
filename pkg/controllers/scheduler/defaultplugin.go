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
	"sort"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
)

// DefaultPlugin implements capacity-based filter/score/spread: the only
// plugin that participates in every stage, and the designated spread
// plugin.
type DefaultPlugin struct{}

var (
	_ Filterer = DefaultPlugin{}
	_ Scorer   = DefaultPlugin{}
	_ Spreader = DefaultPlugin{}
)

// fits reports whether node has, for every resource the job's per-replica
// spec requests, at least that much available.
func fits(node v1alpha1.ResourceList, request v1alpha1.ResourceList) bool {
	for resourceType, quantity := range request {
		if node[resourceType] < quantity {
			return false
		}
	}

	return true
}

// Filter succeeds iff some node in the cluster can fit one replica.
func (DefaultPlugin) Filter(cluster *v1alpha1.Cluster, job *v1alpha1.Job) (Status, string) {
	for _, node := range cluster.Status.AllocatableCapacity {
		if fits(node, job.Spec.Resources) {
			return StatusSuccess, ""
		}
	}

	return StatusUnschedulable, "no node has enough allocatable capacity for one replica"
}

// Score sums available CPU plus 10x available GPU/accelerator capacity
// across every node in the cluster.
func (DefaultPlugin) Score(cluster *v1alpha1.Cluster, _ *v1alpha1.Job) (float64, Status) {
	var score float64

	for _, node := range cluster.Status.AllocatableCapacity {
		score += node[v1alpha1.ResourceCPUs]
		score += 10 * acceleratorQuantity(node)
	}

	return score, StatusSuccess
}

func acceleratorQuantity(node v1alpha1.ResourceList) float64 {
	total := node[v1alpha1.ResourceGPUs]

	for _, accelerator := range v1alpha1.AcceleratorTypes {
		total += node[accelerator]
	}

	return total
}

// Spread greedily packs replicas into clusters in the given (already
// ranked) order, and within a cluster into nodes in name order,
// subtracting the job's per-replica resource vector from a working copy
// of each node's allocatable capacity until either that node's capacity
// is exhausted or the job's replica count is met.
func (DefaultPlugin) Spread(clusters []*v1alpha1.Cluster, job *v1alpha1.Job) (map[string]int, Status) {
	remaining := job.Spec.Replicas
	placement := make(map[string]int, len(clusters))

	for _, cluster := range clusters {
		if remaining <= 0 {
			break
		}

		working := make(map[string]v1alpha1.ResourceList, len(cluster.Status.AllocatableCapacity))
		for node, resources := range cluster.Status.AllocatableCapacity {
			working[node] = cloneResourceList(resources)
		}

		placed := 0

		for remaining > 0 {
			node, ok := firstFittingNode(working, job.Spec.Resources)
			if !ok {
				break
			}

			subtract(working[node], job.Spec.Resources)

			placed++
			remaining--
		}

		if placed > 0 {
			placement[cluster.Metadata.Name] = placed
		}
	}

	if remaining > 0 {
		return nil, StatusUnschedulable
	}

	return placement, StatusSuccess
}

// firstFittingNode returns one node name whose remaining capacity fits
// request, in a stable order so repeated calls within one Spread pack
// deterministically.
func firstFittingNode(nodes map[string]v1alpha1.ResourceList, request v1alpha1.ResourceList) (string, bool) {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if fits(nodes[name], request) {
			return name, true
		}
	}

	return "", false
}

func subtract(node v1alpha1.ResourceList, request v1alpha1.ResourceList) {
	for resourceType, quantity := range request {
		node[resourceType] -= quantity
	}
}

func cloneResourceList(in v1alpha1.ResourceList) v1alpha1.ResourceList {
	out := make(v1alpha1.ResourceList, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
