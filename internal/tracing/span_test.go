// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, exporter
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStartLaunch(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := StartLaunch(context.Background(), provider.Tracer("test"), "/usr/bin/kernel")
	span.SetAttributes(map[string]any{"kernel.pid": 42, "kernel.ready": true})
	span.AddEvent("descriptor", map[string]any{"path": "/tmp/kernel-42.json"})
	assert.NotEmpty(t, span.TraceID())
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "kernel.launch", spans[0].Name)

	v, ok := attrValue(spans[0].Attributes, "kernel.command")
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/kernel", v.AsString())

	v, ok = attrValue(spans[0].Attributes, "kernel.pid")
	require.True(t, ok)
	assert.Equal(t, int64(42), v.AsInt64())

	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "descriptor", spans[0].Events[0].Name)
}

func TestStartRequest_RecordError(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := StartRequest(context.Background(), provider.Tracer("test"), "shell", "execute_request")
	span.RecordError(errors.New("boom"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "kernel.shell: execute_request", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "boom", spans[0].Status.Description)
}

func TestNilSpan(t *testing.T) {
	var span *Span
	assert.NotPanics(t, func() {
		span.SetAttributes(map[string]any{"a": 1})
		span.AddEvent("e", nil)
		span.RecordError(errors.New("x"))
		span.End()
	})
	assert.Empty(t, span.TraceID())
}
