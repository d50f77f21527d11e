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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/constants"
	"github.com/skyshift/skyshift/pkg/kv"
	"github.com/skyshift/skyshift/pkg/registry"
	"github.com/skyshift/skyshift/pkg/server/apierrors"
	"github.com/skyshift/skyshift/pkg/server/auth"
	"github.com/skyshift/skyshift/pkg/server/middleware"
)

// Server wires the KV store, object registry, authenticator/authorizer,
// and per-kind CRUD+watch routes into a single http.Server.
type Server struct {
	// Options configures the HTTP listener.
	Options Options

	// AuthOptions configures bearer-token issuing/verification.
	AuthOptions auth.Options

	store  *kv.Store
	issuer *auth.Issuer
}

// AddFlags registers every flag the server depends on.
func (s *Server) AddFlags(flags *pflag.FlagSet) {
	s.Options.AddFlags(flags)
	s.AuthOptions.AddFlags(flags)
}

// SetupOpenTelemetry installs the global tracer provider, shipping spans to
// an OTLP collector when OTLPEndpoint is set, and always logging root spans
// through the given logger.
func (s *Server) SetupOpenTelemetry(ctx context.Context, logger logr.Logger) error {
	otel.SetLogger(logger)

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(middleware.NewLoggingSpanProcessor(logger)),
	}

	if s.Options.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(s.Options.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("creating OTLP exporter: %w", err)
		}

		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	otel.SetTracerProvider(sdktrace.NewTracerProvider(opts...))

	return nil
}

// roleLister lists every Role object directly from the store, bypassing
// the HTTP authorization path (the authorizer is what consumes it).
func roleLister(store *kv.Store) middleware.RoleLister {
	return func(ctx context.Context) ([]*v1alpha1.Role, error) {
		kvs, err := store.Range(ctx, collectionKey(string(v1alpha1.KindRole), ""))
		if err != nil {
			return nil, fmt.Errorf("listing roles: %w", err)
		}

		roles := make([]*v1alpha1.Role, 0, len(kvs))

		for _, entryKV := range kvs {
			obj, err := registry.Decode(entryKV.Value)
			if err != nil {
				continue
			}

			role, ok := obj.(*v1alpha1.Role)
			if !ok {
				continue
			}

			roles = append(roles, role)
		}

		return roles, nil
	}
}

// bootstrap ensures the default namespace exists, as required before any
// namespaced object can be created.
func bootstrap(ctx context.Context, store *kv.Store) error {
	key := objectKey(string(v1alpha1.KindNamespace), "", constants.DefaultNamespace)

	_, _, found, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("checking default namespace: %w", err)
	}

	if found {
		return nil
	}

	ns := &v1alpha1.Namespace{
		Kind:     string(v1alpha1.KindNamespace),
		Metadata: v1alpha1.Metadata{Name: constants.DefaultNamespace},
	}

	data, err := json.Marshal(ns)
	if err != nil {
		return fmt.Errorf("encoding default namespace: %w", err)
	}

	if _, err := store.CompareAndPut(ctx, key, data, 0); err != nil {
		var conflict *kv.ConflictError
		if errors.As(err, &conflict) {
			// Another process created it concurrently during bootstrap.
			return nil
		}

		return fmt.Errorf("creating default namespace: %w", err)
	}

	return nil
}

// mountRoutes registers the create/list/get/update/delete/watch handlers
// for every registered kind onto router, scoped per registry.Entry.Namespaced.
func mountRoutes(router chi.Router, h *Handler) {
	for _, kind := range registry.Kinds() {
		entry, err := registry.Lookup(kind)
		if err != nil {
			// Kinds() is derived from the same table Lookup reads; this
			// cannot happen outside of a programming error.
			panic(err)
		}

		if entry.Namespaced {
			router.Get("/"+entry.Plural, h.List(entry))

			router.Route("/{namespace}/"+entry.Plural, func(r chi.Router) {
				r.Post("/", h.Create(entry))
				r.Get("/", h.List(entry))
				r.Get("/{name}", h.Get(entry))
				r.Put("/{name}", h.Update(entry))
				r.Delete("/{name}", h.Delete(entry))
			})

			continue
		}

		router.Route("/"+entry.Plural, func(r chi.Router) {
			r.Post("/", h.Create(entry))
			r.Get("/", h.List(entry))
			r.Get("/{name}", h.Get(entry))
			r.Put("/{name}", h.Update(entry))
			r.Delete("/{name}", h.Delete(entry))
		})
	}
}

// New opens the KV store, bootstraps it, and returns a ready-to-serve
// http.Server. Close must be called (via Shutdown, see cmd/skyshift-apiserver)
// to release the store.
func New(ctx context.Context, options Options, authOptions auth.Options, logger logr.Logger) (*http.Server, *kv.Store, error) {
	store, err := kv.Open(options.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	if err := bootstrap(ctx, store); err != nil {
		_ = store.Close()

		return nil, nil, err
	}

	issuer, err := auth.NewIssuer(&authOptions)
	if err != nil {
		_ = store.Close()

		return nil, nil, fmt.Errorf("creating token issuer: %w", err)
	}

	authorizer := middleware.NewAuthorizer(issuer, roleLister(store))

	updateMode := UpdateMode(options.UpdateMode)
	if updateMode != UpdateModeStrict {
		updateMode = UpdateModeOverwrite
	}

	h := NewHandler(store, authorizer, updateMode)

	router := chi.NewRouter()
	router.Use(middleware.Logger(logger))
	// Watch requests stream until the client disconnects; RequestTimeout bounds the rest.
	requestTimeout := chimiddleware.Timeout(options.RequestTimeout)
	router.Use(func(next http.Handler) http.Handler {
		timed := requestTimeout(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("watch") == "true" {
				next.ServeHTTP(w, r)
				return
			}

			timed.ServeHTTP(w, r)
		})
	})
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierrors.NotFound("no route for this request").Write(w, r)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierrors.MethodNotAllowed().Write(w, r)
	})

	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(authorizer.Authenticate)
		mountRoutes(r, h)
	})

	server := &http.Server{
		Addr:              options.ListenAddress,
		ReadTimeout:       options.ReadTimeout,
		ReadHeaderTimeout: options.ReadHeaderTimeout,
		WriteTimeout:      options.WriteTimeout,
		Handler:           router,
	}

	return server, store, nil
}
