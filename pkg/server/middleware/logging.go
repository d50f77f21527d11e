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
	"net/http"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// loggingResponseWriter is the ubiquitous reimplementation of a response
// writer that allows access to the HTTP status code in middleware.
type loggingResponseWriter struct {
	next http.ResponseWriter
	code int
}

var _ http.ResponseWriter = &loggingResponseWriter{}

func (w *loggingResponseWriter) Header() http.Header {
	return w.next.Header()
}

func (w *loggingResponseWriter) Write(body []byte) (int, error) {
	return w.next.Write(body)
}

func (w *loggingResponseWriter) WriteHeader(statusCode int) {
	w.code = statusCode
	w.next.WriteHeader(statusCode)
}

func (w *loggingResponseWriter) StatusCode() int {
	if w.code == 0 {
		return http.StatusOK
	}

	return w.code
}

// Flush forwards to the wrapped writer, so streamed watch responses pass
// through this middleware.
func (w *loggingResponseWriter) Flush() {
	if f, ok := w.next.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return w.next
}

// Logger starts a span for each request, attaches a request-scoped
// logr.Logger carrying the trace/span IDs to the request context, and
// logs completion with status and latency-relevant span data.
func Logger(base logr.Logger) func(http.Handler) http.Handler {
	tracer := otel.Tracer("skyshift-apiserver")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				semconv.HTTPMethodKey.String(r.Method),
				semconv.HTTPTargetKey.String(r.URL.Path),
			)

			requestLogger := base.WithValues(
				"traceID", span.SpanContext().TraceID().String(),
				"spanID", span.SpanContext().SpanID().String(),
			)

			writer := &loggingResponseWriter{next: w}

			next.ServeHTTP(writer, r.WithContext(logr.NewContext(ctx, requestLogger)))

			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(writer.StatusCode()))

			requestLogger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", writer.StatusCode(),
			)
		})
	}
}
