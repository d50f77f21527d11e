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

package middleware

import (
	"context"
	"net/http"
	"strings"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/server/apierrors"
	"github.com/skyshift/skyshift/pkg/server/auth"
)

// RoleLister returns every Role object currently in the store, used by
// the authorizer to evaluate (subject, action, kind, namespace) against
// each role's rules.
type RoleLister func(ctx context.Context) ([]*v1alpha1.Role, error)

// Authorizer authenticates the bearer token on every request and, once
// route-level kind/namespace/action are known, checks it against the
// Role objects granted to the token's subject.
type Authorizer struct {
	issuer *auth.Issuer
	roles  RoleLister
}

// NewAuthorizer returns a new Authorizer.
func NewAuthorizer(issuer *auth.Issuer, roles RoleLister) *Authorizer {
	return &Authorizer{issuer: issuer, roles: roles}
}

// Authenticate verifies the bearer token on every request and stores the
// subject on the request context. It does not check authorization; that
// happens per-route against the resolved kind/namespace (see Authorize).
func (a *Authorizer) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			apierrors.Unauthorized("missing bearer token").Write(w, r)

			return
		}

		claims, err := a.issuer.Verify(token)
		if err != nil {
			apierrors.Unauthorized("token validation failed").WithError(err).Write(w, r)

			return
		}

		ctx := auth.NewContextWithSubject(r.Context(), claims.Subject)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// methodToAction maps the HTTP verb used to the coarse Role action it
// requires.
func methodToAction(method string) v1alpha1.Action {
	switch method {
	case http.MethodPost:
		return v1alpha1.ActionCreate
	case http.MethodPut:
		return v1alpha1.ActionUpdate
	case http.MethodPatch:
		return v1alpha1.ActionPatch
	case http.MethodDelete:
		return v1alpha1.ActionDelete
	default:
		return v1alpha1.ActionGet
	}
}

// Authorize checks that the authenticated subject's roles grant the
// given action over kind/namespace, returning a *apierrors.HTTPError (403)
// on refusal. It must run after Authenticate.
func (a *Authorizer) Authorize(r *http.Request, kind, namespace string) error {
	subject, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		return apierrors.Unauthorized("no authenticated subject")
	}

	roles, err := a.roles(r.Context())
	if err != nil {
		return apierrors.Internal("failed to list roles").WithError(err)
	}

	action := methodToAction(r.Method)

	for _, role := range roles {
		if role.Spec.Allows(subject, action, kind, namespace) {
			return nil
		}
	}

	return apierrors.Forbidden("role does not grant this action").
		WithValues("subject", subject, "action", action, "kind", kind, "namespace", namespace)
}
