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

// Package apierrors is the HTTP boundary's error taxonomy: validation
// errors become 400, conflicts 409, missing objects 404, auth failures
// 401/403, and everything else unwrapped is a 500.
package apierrors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-logr/logr"
)

// ErrRequest is the sentinel every HTTPError wraps, so callers can test
// for "this was a well-formed API error" with errors.Is.
var ErrRequest = errors.New("request error")

// HTTPError carries everything needed to both log server-side detail and
// render a client-facing response.
type HTTPError struct {
	status  int
	code    string
	message string
	detail  any
	err     error
	values  []interface{}
}

func newHTTPError(status int, code, message string) *HTTPError {
	return &HTTPError{status: status, code: code, message: message}
}

// WithError attaches an underlying error for logging; it is never
// rendered to the client.
func (e *HTTPError) WithError(err error) *HTTPError {
	e.err = err

	return e
}

// WithDetail attaches a JSON-serializable detail payload to the response
// body, e.g. the current revision on a 409.
func (e *HTTPError) WithDetail(detail any) *HTTPError {
	e.detail = detail

	return e
}

// WithValues attaches structured key/value pairs for server-side logging
// only.
func (e *HTTPError) WithValues(values ...interface{}) *HTTPError {
	e.values = values

	return e
}

func (e *HTTPError) Unwrap() error {
	return ErrRequest
}

func (e *HTTPError) Error() string {
	return e.message
}

// body is the wire shape of every error response.
type body struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// Write logs the error with full internal detail and renders the
// client-facing JSON body.
func (e *HTTPError) Write(w http.ResponseWriter, r *http.Request) {
	log := logr.FromContextOrDiscard(r.Context())

	values := append([]interface{}{"status", e.status, "code", e.code}, e.values...)

	if e.err != nil {
		log.Error(e.err, e.message, values...)
	} else {
		log.Info(e.message, values...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(e.status)

	data, err := json.Marshal(body{Error: e.code, Message: e.message, Detail: e.detail})
	if err != nil {
		log.Error(err, "failed to marshal error response")

		return
	}

	if _, err := w.Write(data); err != nil {
		log.Error(err, "failed to write error response")
	}
}

// NotFound is a 404: the object does not exist.
func NotFound(message string) *HTTPError {
	return newHTTPError(http.StatusNotFound, "not_found", message)
}

// AlreadyExists is a 400: create rejected, the scoped name is taken.
func AlreadyExists(message string) *HTTPError {
	return newHTTPError(http.StatusBadRequest, "already_exists", message)
}

// Invalid is a 400: the payload violates schema or invariants.
func Invalid(message string) *HTTPError {
	return newHTTPError(http.StatusBadRequest, "invalid", message)
}

// Conflict is a 409: optimistic update failed. currentRevision is
// returned in the detail so the client can refetch and retry.
func Conflict(currentRevision uint64) *HTTPError {
	return newHTTPError(http.StatusConflict, "conflict", "resource_version conflict").
		WithDetail(map[string]uint64{"currentRevision": currentRevision})
}

// Unauthorized is a 401: missing, expired, or invalid token.
func Unauthorized(message string) *HTTPError {
	return newHTTPError(http.StatusUnauthorized, "unauthorized", message)
}

// Forbidden is a 403: no role rule grants the action.
func Forbidden(message string) *HTTPError {
	return newHTTPError(http.StatusForbidden, "forbidden", message)
}

// Internal is a 500: the server is at fault.
func Internal(message string) *HTTPError {
	return newHTTPError(http.StatusInternalServerError, "internal", message)
}

// MethodNotAllowed is a 405.
func MethodNotAllowed() *HTTPError {
	return newHTTPError(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// Handle is the top-level handler-error entry point: every path handler
// funnels its returned error through this before responding.
func Handle(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError

	if errors.As(err, &httpErr) {
		httpErr.Write(w, r)

		return
	}

	Internal("unhandled error").WithError(err).Write(w, r)
}
