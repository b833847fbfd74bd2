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
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "console", cfg: Config{Exporter: ExporterConsole, SampleRate: 0.5}},
		{name: "otlp", cfg: Config{Exporter: ExporterOTLP, Endpoint: "localhost:4317", SampleRate: 1}},
		{name: "otlp without endpoint", cfg: Config{Exporter: ExporterOTLP}, field: "tracing.endpoint"},
		{name: "otlp-http without endpoint", cfg: Config{Exporter: ExporterOTLPHTTP}, field: "tracing.endpoint"},
		{name: "unknown exporter", cfg: Config{Exporter: "jaeger"}, field: "tracing.exporter"},
		{name: "rate too high", cfg: Config{Exporter: ExporterConsole, SampleRate: 1.5}, field: "tracing.sample_rate"},
		{name: "negative rate", cfg: Config{SampleRate: -0.1}, field: "tracing.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *kkerrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.ForceFlush(context.Background()))
}

func TestNewProvider_Console(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Exporter = ExporterConsole
	cfg.ServiceVersion = "test"

	p, err := NewProvider(context.Background(), cfg, &buf)
	require.NoError(t, err)
	require.NotNil(t, p)

	_, span := StartLaunch(context.Background(), Tracer(), "/bin/kernel")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "kernel.launch")
	assert.Contains(t, buf.String(), "/bin/kernel")
}

func TestNewProvider_ConsoleNeedsWriter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporter = ExporterConsole

	_, err := NewProvider(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewProvider_Invalid(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Exporter: "zipkin"}, nil)
	assert.Error(t, err)
}
