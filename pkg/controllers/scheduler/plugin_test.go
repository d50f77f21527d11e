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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
)

func clusterWithCapacity(name string, nodes v1alpha1.NodeResources) *v1alpha1.Cluster {
	return &v1alpha1.Cluster{
		Kind:     string(v1alpha1.KindCluster),
		Metadata: v1alpha1.Metadata{Name: name},
		Status:   v1alpha1.ClusterStatus{AllocatableCapacity: nodes},
	}
}

func jobRequesting(replicas int, resources v1alpha1.ResourceList) *v1alpha1.Job {
	return &v1alpha1.Job{
		Kind:     string(v1alpha1.KindJob),
		Metadata: v1alpha1.Metadata{Name: "job", Namespace: "default"},
		Spec:     v1alpha1.JobSpec{Image: "image", Replicas: replicas, Resources: resources},
	}
}

func TestDefaultPluginFilter(t *testing.T) {
	t.Parallel()

	big := clusterWithCapacity("big", v1alpha1.NodeResources{
		"node-1": {v1alpha1.ResourceCPUs: 8, v1alpha1.ResourceMemory: 32},
	})
	small := clusterWithCapacity("small", v1alpha1.NodeResources{
		"node-1": {v1alpha1.ResourceCPUs: 1, v1alpha1.ResourceMemory: 2},
	})

	job := jobRequesting(1, v1alpha1.ResourceList{v1alpha1.ResourceCPUs: 4, v1alpha1.ResourceMemory: 8})

	status, _ := DefaultPlugin{}.Filter(big, job)
	assert.Equal(t, StatusSuccess, status)

	status, reason := DefaultPlugin{}.Filter(small, job)
	assert.Equal(t, StatusUnschedulable, status)
	assert.NotEmpty(t, reason)
}

func TestDefaultPluginScorePrefersMoreCapacityAndAccelerators(t *testing.T) {
	t.Parallel()

	cpuOnly := clusterWithCapacity("cpu-only", v1alpha1.NodeResources{
		"node-1": {v1alpha1.ResourceCPUs: 4},
	})
	withGPU := clusterWithCapacity("with-gpu", v1alpha1.NodeResources{
		"node-1": {v1alpha1.ResourceCPUs: 4, v1alpha1.ResourceGPUs: 1},
	})

	job := jobRequesting(1, v1alpha1.ResourceList{v1alpha1.ResourceCPUs: 1})

	scoreCPU, status := DefaultPlugin{}.Score(cpuOnly, job)
	require.Equal(t, StatusSuccess, status)

	scoreGPU, status := DefaultPlugin{}.Score(withGPU, job)
	require.Equal(t, StatusSuccess, status)

	assert.Greater(t, scoreGPU, scoreCPU)
}

func TestDefaultPluginSpreadPacksAcrossClusters(t *testing.T) {
	t.Parallel()

	a := clusterWithCapacity("a", v1alpha1.NodeResources{
		"node-1": {v1alpha1.ResourceCPUs: 2},
	})
	b := clusterWithCapacity("b", v1alpha1.NodeResources{
		"node-1": {v1alpha1.ResourceCPUs: 2},
		"node-2": {v1alpha1.ResourceCPUs: 2},
	})

	job := jobRequesting(3, v1alpha1.ResourceList{v1alpha1.ResourceCPUs: 1})

	placement, status := DefaultPlugin{}.Spread([]*v1alpha1.Cluster{a, b}, job)
	require.Equal(t, StatusSuccess, status)
	assert.Equal(t, 2, placement["a"])
	assert.Equal(t, 1, placement["b"])
}

func TestDefaultPluginSpreadUnschedulableWhenCapacityInsufficient(t *testing.T) {
	t.Parallel()

	a := clusterWithCapacity("a", v1alpha1.NodeResources{
		"node-1": {v1alpha1.ResourceCPUs: 1},
	})

	job := jobRequesting(5, v1alpha1.ResourceList{v1alpha1.ResourceCPUs: 1})

	placement, status := DefaultPlugin{}.Spread([]*v1alpha1.Cluster{a}, job)
	assert.Equal(t, StatusUnschedulable, status)
	assert.Nil(t, placement)
}

func TestClusterAffinityPluginExclude(t *testing.T) {
	t.Parallel()

	policy := &v1alpha1.FilterPolicy{
		Kind:     string(v1alpha1.KindFilterPolicy),
		Metadata: v1alpha1.Metadata{Name: "no-a", Namespace: "default"},
		Spec:     v1alpha1.FilterPolicySpec{Exclude: []string{"a"}},
	}

	plugin := ClusterAffinityPlugin{ListFilterPolicies: func(string) []*v1alpha1.FilterPolicy {
		return []*v1alpha1.FilterPolicy{policy}
	}}

	job := jobRequesting(1, nil)

	status, _ := plugin.Filter(clusterWithCapacity("a", nil), job)
	assert.Equal(t, StatusUnschedulable, status)

	status, _ = plugin.Filter(clusterWithCapacity("b", nil), job)
	assert.Equal(t, StatusSuccess, status)
}

func TestClusterAffinityPluginInclude(t *testing.T) {
	t.Parallel()

	policy := &v1alpha1.FilterPolicy{
		Kind:     string(v1alpha1.KindFilterPolicy),
		Metadata: v1alpha1.Metadata{Name: "only-a", Namespace: "default"},
		Spec:     v1alpha1.FilterPolicySpec{Include: []string{"a"}},
	}

	plugin := ClusterAffinityPlugin{ListFilterPolicies: func(string) []*v1alpha1.FilterPolicy {
		return []*v1alpha1.FilterPolicy{policy}
	}}

	job := jobRequesting(1, nil)

	status, _ := plugin.Filter(clusterWithCapacity("a", nil), job)
	assert.Equal(t, StatusSuccess, status)

	status, _ = plugin.Filter(clusterWithCapacity("b", nil), job)
	assert.Equal(t, StatusUnschedulable, status)
}
