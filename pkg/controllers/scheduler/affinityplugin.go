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
	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
)

// FilterPolicyLister returns every FilterPolicy in a namespace, sourced
// from the scheduler's FilterPolicy informer cache.
type FilterPolicyLister func(namespace string) []*v1alpha1.FilterPolicy

// ClusterAffinityPlugin enforces FilterPolicy include/exclude lists for
// jobs whose labels match a policy's selector.
type ClusterAffinityPlugin struct {
	ListFilterPolicies FilterPolicyLister
}

var _ Filterer = ClusterAffinityPlugin{}

// Filter succeeds unless some matching FilterPolicy names this cluster in
// its exclude list, or names a non-empty include list that omits it.
func (p ClusterAffinityPlugin) Filter(cluster *v1alpha1.Cluster, job *v1alpha1.Job) (Status, string) {
	policies := p.ListFilterPolicies(job.Metadata.Namespace)

	for _, policy := range policies {
		if !policy.Spec.Matches(job.Metadata.Labels) {
			continue
		}

		if contains(policy.Spec.Exclude, cluster.Metadata.Name) {
			return StatusUnschedulable, "excluded by FilterPolicy " + policy.Metadata.Name
		}

		if len(policy.Spec.Include) > 0 && !contains(policy.Spec.Include, cluster.Metadata.Name) {
			return StatusUnschedulable, "not included by FilterPolicy " + policy.Metadata.Name
		}
	}

	return StatusSuccess, ""
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}

	return false
}
