// Copyright 2026 The StratumGate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package obs provides a small tracing facade so the HTTP chat handlers can
// emit spans without binding directly to an OpenTelemetry SDK instance.
package obs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer instruments gateway operations. Implementations must be safe for
// concurrent use.
type Tracer interface {
	// StartSpan begins a span and returns the derived context plus an ender.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func())
}

// otelTracer backs Tracer with a real go.opentelemetry.io/otel tracer.
type otelTracer struct {
	tracer trace.Tracer
}

// New wraps an OpenTelemetry tracer obtained from an SDK TracerProvider.
func New(tracer trace.Tracer) Tracer {
	return &otelTracer{tracer: tracer}
}

func (t *otelTracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

// noopTracer discards all spans; used as the default when no SDK is wired.
type noopTracer struct{}

// Noop returns a Tracer that does nothing, safe for tests and standalone use.
func Noop() Tracer { return noopTracer{} }

func (noopTracer) StartSpan(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, func()) {
	return ctx, func() {}
}
