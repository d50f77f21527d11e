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

	"github.com/go-logr/logr"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LoggingSpanProcessor logs every completed root span at info level, so
// request tracing is visible in the logs even without an OTLP collector
// configured.
type LoggingSpanProcessor struct {
	logger logr.Logger
}

var _ sdktrace.SpanProcessor = &LoggingSpanProcessor{}

// NewLoggingSpanProcessor returns a span processor that logs through logger.
func NewLoggingSpanProcessor(logger logr.Logger) *LoggingSpanProcessor {
	return &LoggingSpanProcessor{logger: logger}
}

func (p *LoggingSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *LoggingSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if s.Parent().IsValid() {
		return
	}

	p.logger.V(1).Info("span completed",
		"name", s.Name(),
		"traceID", s.SpanContext().TraceID().String(),
		"spanID", s.SpanContext().SpanID().String(),
		"duration", s.EndTime().Sub(s.StartTime()).String(),
	)
}

func (p *LoggingSpanProcessor) Shutdown(context.Context) error { return nil }

func (p *LoggingSpanProcessor) ForceFlush(context.Context) error { return nil }
