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

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/registry"
)

func TestLookupKnownKinds(t *testing.T) {
	t.Parallel()

	for _, kind := range registry.Kinds() {
		entry, err := registry.Lookup(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, entry.Kind)
		assert.NotNil(t, entry.New())
		assert.NotNil(t, entry.NewList())
	}
}

func TestLookupUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := registry.Lookup("Widget")
	require.ErrorIs(t, err, registry.ErrUnknownKind)
}

func TestNamespaceScoping(t *testing.T) {
	t.Parallel()

	namespaced := map[string]bool{
		string(v1alpha1.KindJob):          true,
		string(v1alpha1.KindFilterPolicy): true,
		string(v1alpha1.KindService):      true,
		string(v1alpha1.KindEndpoints):    true,
		string(v1alpha1.KindCluster):      false,
		string(v1alpha1.KindNamespace):    false,
		string(v1alpha1.KindLink):         false,
		string(v1alpha1.KindRole):         false,
	}

	for kind, want := range namespaced {
		entry, err := registry.Lookup(kind)
		require.NoError(t, err)
		assert.Equal(t, want, entry.Namespaced, kind)
	}
}

func TestDecodeJob(t *testing.T) {
	t.Parallel()

	doc := []byte(`
kind: Job
metadata:
  name: train
  namespace: default
spec:
  image: my/image:latest
  replicas: 2
  resources:
    cpus: 1
    memory: 512
`)

	obj, err := registry.Decode(doc)
	require.NoError(t, err)

	job, ok := obj.(*v1alpha1.Job)
	require.True(t, ok)
	assert.Equal(t, "train", job.Metadata.Name)
	assert.Equal(t, 2, job.Spec.Replicas)
	assert.InDelta(t, float64(1), job.Spec.Resources[v1alpha1.ResourceCPUs], 0)
}

func TestDecodeUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := registry.Decode([]byte(`kind: Widget`))
	require.ErrorIs(t, err, registry.ErrUnknownKind)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	doc := []byte(`
kind: Namespace
metadata:
  name: team-a
futureField: true
`)

	obj, err := registry.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, "team-a", obj.GetMetadata().Name)
}

func TestValidateJobRequiresImageAndReplicas(t *testing.T) {
	t.Parallel()

	entry, err := registry.Lookup(string(v1alpha1.KindJob))
	require.NoError(t, err)

	job := entry.New().(*v1alpha1.Job)
	job.Metadata.Name = "bad"
	job.Metadata.Namespace = "default"

	err = entry.Validate(job, func(string) bool { return true })
	require.ErrorIs(t, err, registry.ErrInvalid)

	job.Spec.Image = "my/image"
	job.Spec.Replicas = 0

	err = entry.Validate(job, func(string) bool { return true })
	require.ErrorIs(t, err, registry.ErrInvalid)

	job.Spec.Replicas = 1

	require.NoError(t, entry.Validate(job, func(string) bool { return true }))
}

func TestValidateJobRejectsMissingNamespace(t *testing.T) {
	t.Parallel()

	entry, err := registry.Lookup(string(v1alpha1.KindJob))
	require.NoError(t, err)

	job := entry.New().(*v1alpha1.Job)
	job.Metadata.Name = "train"
	job.Spec.Image = "my/image"
	job.Spec.Replicas = 1

	err = entry.Validate(job, func(string) bool { return false })
	require.ErrorIs(t, err, registry.ErrInvalid)
}

func TestValidateLinkRejectsSelfLoop(t *testing.T) {
	t.Parallel()

	entry, err := registry.Lookup(string(v1alpha1.KindLink))
	require.NoError(t, err)

	link := entry.New().(*v1alpha1.Link)
	link.Metadata.Name = "a-a"
	link.Spec.ClusterA = "a"
	link.Spec.ClusterB = "a"

	err = entry.Validate(link, nil)
	require.ErrorIs(t, err, registry.ErrInvalid)
}

func TestValidateRoleRejectsUnknownResource(t *testing.T) {
	t.Parallel()

	entry, err := registry.Lookup(string(v1alpha1.KindRole))
	require.NoError(t, err)

	role := entry.New().(*v1alpha1.Role)
	role.Metadata.Name = "viewer"
	role.Spec.Users = []string{"alice"}
	role.Spec.Rules = []v1alpha1.RoleRule{
		{Resources: []string{"Widget"}, Actions: []v1alpha1.Action{v1alpha1.ActionGet}},
	}

	err = entry.Validate(role, nil)
	require.ErrorIs(t, err, registry.ErrInvalid)
}
