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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/kv"
	"github.com/skyshift/skyshift/pkg/registry"
	"github.com/skyshift/skyshift/pkg/server/apierrors"
	"github.com/skyshift/skyshift/pkg/server/middleware"
)

// maxRequestBodyBytes bounds how much of a request body a create/update
// handler will read before giving up.
const maxRequestBodyBytes = 1 << 20

// Handler implements the generic create/list/get/update/delete/watch
// surface shared by every registered kind; server.go mounts one route tree
// per registry.Entry against these methods.
type Handler struct {
	store      *kv.Store
	authorizer *middleware.Authorizer
	updateMode UpdateMode
}

// NewHandler returns a Handler backed by store, enforcing authorization
// via authorizer and the given revision-less update policy.
func NewHandler(store *kv.Store, authorizer *middleware.Authorizer, updateMode UpdateMode) *Handler {
	return &Handler{store: store, authorizer: authorizer, updateMode: updateMode}
}

func (h *Handler) namespaceExists(ctx context.Context) func(string) bool {
	return func(name string) bool {
		_, _, found, err := h.store.Get(ctx, objectKey(string(v1alpha1.KindNamespace), "", name))

		return err == nil && found
	}
}

// checkCollectionInvariants enforces the cross-object constraints that a
// single object's Validate cannot see: Link's symmetric pair-uniqueness and
// Endpoints' existence-tied-to-Service rule. Both require scanning the
// existing collection, so they live here rather than in registry.Entry.Validate.
func (h *Handler) checkCollectionInvariants(ctx context.Context, entry *registry.Entry, obj v1alpha1.Object) error {
	switch entry.Kind {
	case string(v1alpha1.KindLink):
		return h.checkLinkUnique(ctx, obj.(*v1alpha1.Link)) //nolint:forcetypeassert
	case string(v1alpha1.KindEndpoints):
		return h.checkEndpointsHasService(ctx, obj.(*v1alpha1.Endpoints)) //nolint:forcetypeassert
	default:
		return nil
	}
}

// checkLinkUnique rejects a Link whose unordered {ClusterA,ClusterB} pair
// matches an already-stored Link; at most one Link may connect any pair.
func (h *Handler) checkLinkUnique(ctx context.Context, link *v1alpha1.Link) error {
	a, b := link.Spec.UnorderedPair()

	kvs, err := h.store.Range(ctx, collectionKey(string(v1alpha1.KindLink), ""))
	if err != nil {
		return fmt.Errorf("checking link uniqueness: %w", err)
	}

	for _, entryKV := range kvs {
		existing, err := registry.Decode(entryKV.Value)
		if err != nil {
			continue
		}

		other, ok := existing.(*v1alpha1.Link)
		if !ok || other.Metadata.Name == link.Metadata.Name {
			continue
		}

		otherA, otherB := other.Spec.UnorderedPair()
		if otherA == a && otherB == b {
			return fmt.Errorf("%w: a link already connects %s and %s (%q)", registry.ErrInvalid, a, b, other.Metadata.Name)
		}
	}

	return nil
}

// checkEndpointsHasService rejects an Endpoints object with no Service of
// the same name in the same namespace.
func (h *Handler) checkEndpointsHasService(ctx context.Context, ep *v1alpha1.Endpoints) error {
	_, _, found, err := h.store.Get(ctx, objectKey(string(v1alpha1.KindService), ep.Metadata.Namespace, ep.Metadata.Name))
	if err != nil {
		return fmt.Errorf("checking owning service: %w", err)
	}

	if !found {
		return fmt.Errorf("%w: no service %q in namespace %q for these endpoints", registry.ErrInvalid, ep.Metadata.Name, ep.Metadata.Namespace)
	}

	return nil
}

// checkNoEndpointsFor rejects deleting a Service while an Endpoints object
// of the same name/namespace still exists; Endpoints must be deleted first.
func (h *Handler) checkNoEndpointsFor(ctx context.Context, namespace, name string) error {
	_, _, found, err := h.store.Get(ctx, objectKey(string(v1alpha1.KindEndpoints), namespace, name))
	if err != nil {
		return fmt.Errorf("checking dependent endpoints: %w", err)
	}

	if found {
		return fmt.Errorf("%w: endpoints %q in namespace %q still exist for this service", registry.ErrInvalid, name, namespace)
	}

	return nil
}

// decodeBody reads and content-negotiates a create/update request body,
// rejecting anything that isn't application/json or application/yaml, and
// confirms the decoded kind matches the route it arrived on.
func (h *Handler) decodeBody(r *http.Request, entry *registry.Entry) (v1alpha1.Object, error) {
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || (mediaType != "application/json" && mediaType != "application/yaml") {
			return nil, apierrors.Invalid(fmt.Sprintf("unsupported Content-Type %q", contentType))
		}
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		return nil, apierrors.Invalid("failed to read request body").WithError(err)
	}

	obj, err := registry.Decode(data)
	if err != nil {
		return nil, apierrors.Invalid("failed to decode request body").WithError(err)
	}

	if obj.GetKind() != entry.Kind {
		return nil, apierrors.Invalid(fmt.Sprintf("kind %q does not match route kind %q", obj.GetKind(), entry.Kind))
	}

	return obj, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Create returns the handler for POST /<plural> or POST /<namespace>/<plural>.
func (h *Handler) Create(entry *registry.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")

		if err := h.authorizer.Authorize(r, entry.Kind, namespace); err != nil {
			apierrors.Handle(w, r, err)

			return
		}

		obj, err := h.decodeBody(r, entry)
		if err != nil {
			apierrors.Handle(w, r, err)

			return
		}

		obj.GetMetadata().Namespace = namespace

		if err := entry.Validate(obj, h.namespaceExists(r.Context())); err != nil {
			apierrors.Invalid(err.Error()).Write(w, r)

			return
		}

		if err := h.checkCollectionInvariants(r.Context(), entry, obj); err != nil {
			apierrors.Invalid(err.Error()).Write(w, r)

			return
		}

		data, err := json.Marshal(obj)
		if err != nil {
			apierrors.Internal("failed to encode object").WithError(err).Write(w, r)

			return
		}

		key := objectKey(entry.Kind, namespace, obj.GetMetadata().Name)

		// expectedRevision 0 doubles as "the key must not already exist",
		// combining the existence check and the write into one transaction.
		revision, err := h.store.CompareAndPut(r.Context(), key, data, 0)
		if err != nil {
			var conflict *kv.ConflictError

			if errors.As(err, &conflict) {
				apierrors.AlreadyExists(fmt.Sprintf("%s %q already exists", entry.Kind, obj.GetMetadata().Name)).Write(w, r)

				return
			}

			apierrors.Internal("failed to write object").WithError(err).Write(w, r)

			return
		}

		obj.GetMetadata().ResourceVersion = revision

		writeJSON(w, http.StatusCreated, obj)
	}
}

// List returns the handler for GET /<plural> or GET /<namespace>/<plural>,
// optionally upgraded to a watch stream.
func (h *Handler) List(entry *registry.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		allNamespaces := r.URL.Query().Get("all_namespaces") == "true"

		authNamespace := namespace

		if entry.Namespaced && namespace == "" {
			if !allNamespaces {
				apierrors.Invalid("namespaced kind requires a namespace path segment or all_namespaces=true").Write(w, r)

				return
			}

			// Listing across every namespace requires a role rule whose
			// Namespaces explicitly includes the wildcard, not just any one
			// namespace; see RoleRule.Allows.
			authNamespace = v1alpha1.Wildcard
		}

		if err := h.authorizer.Authorize(r, entry.Kind, authNamespace); err != nil {
			apierrors.Handle(w, r, err)

			return
		}

		prefix := collectionKey(entry.Kind, namespace)

		if r.URL.Query().Get("watch") == "true" {
			h.streamWatch(w, r, prefix, nil)

			return
		}

		kvs, err := h.store.Range(r.Context(), prefix)
		if err != nil {
			apierrors.Internal("failed to list objects").WithError(err).Write(w, r)

			return
		}

		log := loggerFromRequest(r)

		items := make([]v1alpha1.Object, 0, len(kvs))

		for _, entryKV := range kvs {
			obj, err := registry.Decode(entryKV.Value)
			if err != nil {
				log.Error(err, "skipping corrupt stored object", "key", string(entryKV.Key))

				continue
			}

			obj.GetMetadata().ResourceVersion = entryKV.Revision
			items = append(items, obj)
		}

		list := entry.NewList()
		list.SetItems(items)

		writeJSON(w, http.StatusOK, list)
	}
}

// Get returns the handler for GET /<plural>/<name> or
// GET /<namespace>/<plural>/<name>, optionally upgraded to a watch stream.
func (h *Handler) Get(entry *registry.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		name := chi.URLParam(r, "name")

		if err := h.authorizer.Authorize(r, entry.Kind, namespace); err != nil {
			apierrors.Handle(w, r, err)

			return
		}

		key := objectKey(entry.Kind, namespace, name)

		if r.URL.Query().Get("watch") == "true" {
			h.streamWatch(w, r, key, key)

			return
		}

		value, revision, found, err := h.store.Get(r.Context(), key)
		if err != nil {
			apierrors.Internal("failed to read object").WithError(err).Write(w, r)

			return
		}

		if !found {
			apierrors.NotFound(fmt.Sprintf("%s %q not found", entry.Kind, name)).Write(w, r)

			return
		}

		obj, err := registry.Decode(value)
		if err != nil {
			apierrors.Internal("stored object is corrupt").WithError(err).Write(w, r)

			return
		}

		obj.GetMetadata().ResourceVersion = revision

		writeJSON(w, http.StatusOK, obj)
	}
}

// Update returns the handler for PUT /<plural>/<name> or
// PUT /<namespace>/<plural>/<name>.
func (h *Handler) Update(entry *registry.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		name := chi.URLParam(r, "name")

		if err := h.authorizer.Authorize(r, entry.Kind, namespace); err != nil {
			apierrors.Handle(w, r, err)

			return
		}

		key := objectKey(entry.Kind, namespace, name)

		if _, _, found, err := h.store.Get(r.Context(), key); err != nil {
			apierrors.Internal("failed to read object").WithError(err).Write(w, r)

			return
		} else if !found {
			apierrors.NotFound(fmt.Sprintf("%s %q not found", entry.Kind, name)).Write(w, r)

			return
		}

		obj, err := h.decodeBody(r, entry)
		if err != nil {
			apierrors.Handle(w, r, err)

			return
		}

		obj.GetMetadata().Namespace = namespace
		obj.GetMetadata().Name = name

		if err := entry.Validate(obj, h.namespaceExists(r.Context())); err != nil {
			apierrors.Invalid(err.Error()).Write(w, r)

			return
		}

		data, err := json.Marshal(obj)
		if err != nil {
			apierrors.Internal("failed to encode object").WithError(err).Write(w, r)

			return
		}

		requestedRevision := obj.GetMetadata().ResourceVersion

		var revision uint64

		switch {
		case requestedRevision != 0:
			revision, err = h.store.CompareAndPut(r.Context(), key, data, requestedRevision)
		case h.updateMode == UpdateModeStrict:
			apierrors.Invalid("update requires resource_version in strict update mode").Write(w, r)

			return
		default:
			revision, err = h.store.Put(r.Context(), key, data)
		}

		if err != nil {
			var conflict *kv.ConflictError

			if errors.As(err, &conflict) {
				apierrors.Conflict(conflict.CurrentRevision).Write(w, r)

				return
			}

			apierrors.Internal("failed to write object").WithError(err).Write(w, r)

			return
		}

		obj.GetMetadata().ResourceVersion = revision

		writeJSON(w, http.StatusOK, obj)
	}
}

// Delete returns the handler for DELETE /<plural>/<name> or
// DELETE /<namespace>/<plural>/<name>.
func (h *Handler) Delete(entry *registry.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := chi.URLParam(r, "namespace")
		name := chi.URLParam(r, "name")

		if err := h.authorizer.Authorize(r, entry.Kind, namespace); err != nil {
			apierrors.Handle(w, r, err)

			return
		}

		if entry.Kind == string(v1alpha1.KindService) {
			if err := h.checkNoEndpointsFor(r.Context(), namespace, name); err != nil {
				apierrors.Invalid(err.Error()).Write(w, r)

				return
			}
		}

		key := objectKey(entry.Kind, namespace, name)

		if _, err := h.store.Delete(r.Context(), key); err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				apierrors.NotFound(fmt.Sprintf("%s %q not found", entry.Kind, name)).Write(w, r)

				return
			}

			apierrors.Internal("failed to delete object").WithError(err).Write(w, r)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// streamWatch subscribes to watchKey (a prefix for a collection watch, or
// an exact object key for a single-object watch) and writes NDJSON
// WatchEvent lines until the client disconnects. exactKey, when non-nil,
// filters out events for other keys that merely share watchKey as a byte
// prefix (e.g. "hello" is a byte-prefix of "hello-2").
func (h *Handler) streamWatch(w http.ResponseWriter, r *http.Request, watchKey []byte, exactKey []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		apierrors.Internal("streaming unsupported by this response writer").Write(w, r)

		return
	}

	// The stream runs until the client disconnects, so the server's
	// WriteTimeout is lifted for this connection.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		loggerFromRequest(r).Error(err, "clearing write deadline for watch stream")
	}

	var fromRevision uint64

	if raw := r.URL.Query().Get("from_revision"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apierrors.Invalid("from_revision must be a non-negative integer").Write(w, r)

			return
		}

		fromRevision = parsed
	}

	events, cancel := h.store.Watch(r.Context(), watchKey, fromRevision)
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := loggerFromRequest(r)
	encoder := json.NewEncoder(w)

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}

			if exactKey != nil && !bytes.Equal(e.Key, exactKey) {
				continue
			}

			obj, err := registry.Decode(e.Value)
			if err != nil {
				log.Error(err, "skipping corrupt watch event", "key", string(e.Key))

				continue
			}

			obj.GetMetadata().ResourceVersion = e.Revision

			if err := encoder.Encode(WatchEvent{EventType: e.Type(), Object: obj}); err != nil {
				return
			}

			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
