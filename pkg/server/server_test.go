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

package server

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/server/auth"
)

// newTestServer boots a Server against a scratch store, seeds an
// admin Role granting subject "admin" every action on every kind, and
// returns an httptest.Server plus a client configured to use it.
func newTestServer(t *testing.T) (*httptest.Server, *client.Client) {
	t.Helper()

	ctx := context.Background()

	opts := Options{
		StorePath:      filepath.Join(t.TempDir(), "skyshift.db"),
		RequestTimeout: 0,
		UpdateMode:     string(UpdateModeOverwrite),
	}
	// The server and the token issuer below share one signing key file; a
	// missing key file would give each Issuer its own random key.
	secretPath := filepath.Join(t.TempDir(), "token-key")

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(secretPath, key, 0o600))

	authOpts := auth.Options{
		SecretPath: secretPath,
	}

	httpServer, store, err := New(ctx, opts, authOpts, logr.Discard())
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	role := &v1alpha1.Role{
		Kind:     string(v1alpha1.KindRole),
		Metadata: v1alpha1.Metadata{Name: "admin"},
		Spec: v1alpha1.RoleSpec{
			Users: []string{"admin"},
			Rules: []v1alpha1.RoleRule{{
				Resources:  []string{v1alpha1.Wildcard},
				Actions:    []v1alpha1.Action{v1alpha1.ActionAll},
				Namespaces: []string{v1alpha1.Wildcard},
			}},
		},
	}

	data, err := json.Marshal(role)
	require.NoError(t, err)

	_, err = store.Put(ctx, objectKey(string(v1alpha1.KindRole), "", "admin"), data)
	require.NoError(t, err)

	issuer, err := auth.NewIssuer(&authOpts)
	require.NoError(t, err)

	token, err := issuer.Issue("admin")
	require.NoError(t, err)

	ts := httptest.NewServer(httpServer.Handler)
	t.Cleanup(ts.Close)

	c := client.New(client.Options{BaseURL: ts.URL, Token: token})

	return ts, c
}

func TestCreateGetUpdateDelete(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t)

	ctx := context.Background()

	job := &v1alpha1.Job{
		Kind:     string(v1alpha1.KindJob),
		Metadata: v1alpha1.Metadata{Name: "train", Namespace: "default"},
		Spec: v1alpha1.JobSpec{
			Image:    "example.com/train:latest",
			Replicas: 1,
		},
	}

	var created v1alpha1.Job

	require.NoError(t, c.Resource("jobs", "default").Create(ctx, job, &created))
	require.Equal(t, "train", created.Metadata.Name)
	require.NotZero(t, created.Metadata.ResourceVersion)

	var fetched v1alpha1.Job
	require.NoError(t, c.Resource("jobs", "default").Get(ctx, "train", &fetched))
	require.Equal(t, created.Metadata.ResourceVersion, fetched.Metadata.ResourceVersion)

	fetched.Spec.Replicas = 3

	var updated v1alpha1.Job
	require.NoError(t, c.Resource("jobs", "default").Update(ctx, "train", &fetched, &updated))
	require.Equal(t, 3, updated.Spec.Replicas)
	require.NotEqual(t, created.Metadata.ResourceVersion, updated.Metadata.ResourceVersion)

	require.NoError(t, c.Resource("jobs", "default").Delete(ctx, "train"))

	var afterDelete v1alpha1.Job
	err := c.Resource("jobs", "default").Get(ctx, "train", &afterDelete)
	require.Error(t, err)

	var apiErr *client.APIException
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 404, apiErr.StatusCode)
}

func TestCreateRejectsUnknownNamespace(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t)

	ctx := context.Background()

	job := &v1alpha1.Job{
		Kind:     string(v1alpha1.KindJob),
		Metadata: v1alpha1.Metadata{Name: "train", Namespace: "does-not-exist"},
		Spec:     v1alpha1.JobSpec{Image: "example.com/train:latest", Replicas: 1},
	}

	var out v1alpha1.Job
	err := c.Resource("jobs", "does-not-exist").Create(ctx, job, &out)
	require.Error(t, err)

	var apiErr *client.APIException
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 400, apiErr.StatusCode)
}

func TestListRequiresNamespaceOrAllNamespaces(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t)

	ctx := context.Background()

	var list v1alpha1.JobList
	err := c.Resource("jobs", "").List(ctx, false, &list)
	require.Error(t, err)

	var apiErr *client.APIException
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 400, apiErr.StatusCode)

	job := &v1alpha1.Job{
		Kind:     string(v1alpha1.KindJob),
		Metadata: v1alpha1.Metadata{Name: "train", Namespace: "default"},
		Spec:     v1alpha1.JobSpec{Image: "example.com/train:latest", Replicas: 1},
	}

	var created v1alpha1.Job
	require.NoError(t, c.Resource("jobs", "default").Create(ctx, job, &created))

	var all v1alpha1.JobList
	require.NoError(t, c.ResourceAllNamespaces("jobs").List(ctx, false, &all))
	require.Len(t, all.Items, 1)
	require.Equal(t, "train", all.Items[0].Metadata.Name)
}

func TestCreateLinkRejectsDuplicatePair(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t)

	ctx := context.Background()

	first := &v1alpha1.Link{
		Kind:     string(v1alpha1.KindLink),
		Metadata: v1alpha1.Metadata{Name: "a-b"},
		Spec:     v1alpha1.LinkSpec{ClusterA: "a", ClusterB: "b"},
	}

	var created v1alpha1.Link
	require.NoError(t, c.Resource("links", "").Create(ctx, first, &created))

	reversed := &v1alpha1.Link{
		Kind:     string(v1alpha1.KindLink),
		Metadata: v1alpha1.Metadata{Name: "b-a"},
		Spec:     v1alpha1.LinkSpec{ClusterA: "b", ClusterB: "a"},
	}

	var out v1alpha1.Link
	err := c.Resource("links", "").Create(ctx, reversed, &out)
	require.Error(t, err)

	var apiErr *client.APIException
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 400, apiErr.StatusCode)
}

func TestCreateEndpointsRequiresMatchingService(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t)

	ctx := context.Background()

	ep := &v1alpha1.Endpoints{
		Kind:     string(v1alpha1.KindEndpoints),
		Metadata: v1alpha1.Metadata{Name: "web", Namespace: "default"},
	}

	var out v1alpha1.Endpoints
	err := c.Resource("endpoints", "default").Create(ctx, ep, &out)
	require.Error(t, err)

	var apiErr *client.APIException
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 400, apiErr.StatusCode)

	svc := &v1alpha1.Service{
		Kind:     string(v1alpha1.KindService),
		Metadata: v1alpha1.Metadata{Name: "web", Namespace: "default"},
		Spec:     v1alpha1.ServiceSpec{PrimaryCluster: "a"},
	}

	var createdSvc v1alpha1.Service
	require.NoError(t, c.Resource("services", "default").Create(ctx, svc, &createdSvc))

	var createdEP v1alpha1.Endpoints
	require.NoError(t, c.Resource("endpoints", "default").Create(ctx, ep, &createdEP))

	err = c.Resource("services", "default").Delete(ctx, "web")
	require.Error(t, err)
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 400, apiErr.StatusCode)

	require.NoError(t, c.Resource("endpoints", "default").Delete(ctx, "web"))
	require.NoError(t, c.Resource("services", "default").Delete(ctx, "web"))
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	anon := client.New(client.Options{BaseURL: ts.URL})

	ctx := context.Background()

	var list v1alpha1.JobList
	err := anon.Resource("jobs", "default").List(ctx, false, &list)
	require.Error(t, err)

	var apiErr *client.APIException
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.StatusCode)
}
