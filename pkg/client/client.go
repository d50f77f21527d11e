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

// Package client is the thin typed HTTP client controllers use to talk to
// the API server: one Resource per kind, the create/update/get/list/delete
// verbs each issuing a single request, and a reconnecting watch() built on
// top for the informer layer.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
)

// APIException wraps a non-2xx API server response.
type APIException struct {
	StatusCode int
	Code       string
	Message    string
	Detail     any
}

func (e *APIException) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API server's base address, e.g. "http://localhost:6080".
	BaseURL string

	// Token is the bearer token sent on every request.
	Token string

	// HTTPClient overrides the default *http.Client; useful for tests.
	HTTPClient *http.Client
}

// Client is the typed API client, generic over one kind at a time via
// Resource.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New returns a Client configured against options.
func New(options Options) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		token:      options.Token,
		httpClient: httpClient,
	}
}

// Resource returns a typed handle for one kind's collection, optionally
// scoped to a namespace (pass "" for cluster-scoped kinds).
func (c *Client) Resource(plural, namespace string) *Resource {
	return &Resource{client: c, plural: plural, namespace: namespace}
}

// ResourceAllNamespaces returns a handle for a namespaced kind's bare
// collection route, spanning every namespace: List and watch requests both
// carry all_namespaces=true so the server doesn't reject the missing
// namespace path segment.
func (c *Client) ResourceAllNamespaces(plural string) *Resource {
	return &Resource{client: c, plural: plural, allNamespaces: true}
}

// Resource is a typed handle for one kind's collection.
type Resource struct {
	client        *Client
	plural        string
	namespace     string
	allNamespaces bool
}

func (r *Resource) collectionPath() string {
	if r.namespace != "" {
		return "/" + r.namespace + "/" + r.plural
	}

	return "/" + r.plural
}

func (r *Resource) itemPath(name string) string {
	return r.collectionPath() + "/" + name
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}

	return resp, nil
}

func asAPIException(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var body errorBody
	_ = json.Unmarshal(data, &body)

	return &APIException{
		StatusCode: resp.StatusCode,
		Code:       body.Error,
		Message:    body.Message,
		Detail:     body.Detail,
	}
}

// Create creates obj and returns the server's stored copy (with
// resource_version set) decoded into out.
func (r *Resource) Create(ctx context.Context, obj, out any) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encoding create body: %w", err)
	}

	resp, err := r.client.do(ctx, http.MethodPost, r.collectionPath(), nil, body)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return asAPIException(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// Get fetches name and decodes it into out.
func (r *Resource) Get(ctx context.Context, name string, out any) error {
	resp, err := r.client.do(ctx, http.MethodGet, r.itemPath(name), nil, nil)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return asAPIException(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// List populates out (a pointer to a kind's list type) from the
// collection, optionally across every namespace.
func (r *Resource) List(ctx context.Context, allNamespaces bool, out any) error {
	query := url.Values{}
	if allNamespaces || r.allNamespaces {
		query.Set("all_namespaces", "true")
	}

	resp, err := r.client.do(ctx, http.MethodGet, r.collectionPath(), query, nil)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return asAPIException(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// Update performs an update of name. If obj carries a non-zero
// resource_version the server does a compare-and-swap and may return a 409
// APIException; otherwise it overwrites unconditionally (server default).
func (r *Resource) Update(ctx context.Context, name string, obj, out any) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encoding update body: %w", err)
	}

	resp, err := r.client.do(ctx, http.MethodPut, r.itemPath(name), nil, body)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return asAPIException(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// Delete removes name.
func (r *Resource) Delete(ctx context.Context, name string) error {
	resp, err := r.client.do(ctx, http.MethodDelete, r.itemPath(name), nil, nil)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return asAPIException(resp)
	}

	return nil
}

// watchEvent mirrors pkg/server.WatchEvent on the wire, but decodes Object
// generically since the client doesn't know the concrete type until the
// caller supplies one via WatchInto.
type watchEvent struct {
	EventType string          `json:"event_type"`
	Object    json.RawMessage `json:"object"`
}

// Event is one decoded watch notification.
type Event struct {
	Type   v1alpha1.Kind // reused only for its string underlying type; holds ADD/UPDATE/DELETE
	Object json.RawMessage
}

// watchRaw opens a single watch connection and streams decoded NDJSON
// lines to the returned channel until ctx is cancelled or the connection
// drops; it does not reconnect (see Watcher for that).
func (r *Resource) watchRaw(ctx context.Context, name string) (<-chan Event, <-chan error, error) {
	query := url.Values{"watch": {"true"}}
	if r.allNamespaces {
		query.Set("all_namespaces", "true")
	}

	path := r.collectionPath()
	if name != "" {
		path = r.itemPath(name)
	}

	resp, err := r.client.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, nil, asAPIException(resp)
	}

	events := make(chan Event)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)

		for {
			var raw watchEvent

			if err := decoder.Decode(&raw); err != nil {
				if ctx.Err() == nil && !isEOF(err) {
					errs <- err
				}

				return
			}

			select {
			case events <- Event{Type: v1alpha1.Kind(raw.EventType), Object: raw.Object}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, errs, nil
}

func isEOF(err error) bool {
	return err == io.EOF //nolint:errorlint
}
