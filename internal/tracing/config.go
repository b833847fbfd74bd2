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
	"fmt"

	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

// Exporter types.
const (
	ExporterNone     = "none"
	ExporterConsole  = "console"
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlp-http"
)

// Config holds tracing configuration.
type Config struct {
	// Exporter is one of none, console, otlp or otlp-http.
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP receiver address.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS for OTLP exporters.
	Insecure bool `yaml:"insecure,omitempty"`

	// Headers are sent with every OTLP export.
	Headers map[string]string `yaml:"headers,omitempty"`

	// SampleRate is the fraction of traces recorded (0.0 - 1.0).
	SampleRate float64 `yaml:"sample_rate"`

	// ServiceName identifies this process in traces.
	ServiceName string `yaml:"-"`

	// ServiceVersion is the application version.
	ServiceVersion string `yaml:"-"`
}

// DefaultConfig returns configuration with tracing disabled.
func DefaultConfig() Config {
	return Config{
		Exporter:       ExporterNone,
		SampleRate:     1.0,
		ServiceName:    "kernelkit",
		ServiceVersion: "unknown",
	}
}

// Enabled reports whether spans are exported anywhere.
func (c Config) Enabled() bool {
	return c.Exporter != "" && c.Exporter != ExporterNone
}

// Validate checks the exporter settings.
func (c Config) Validate() error {
	switch c.Exporter {
	case "", ExporterNone, ExporterConsole:
	case ExporterOTLP, ExporterOTLPHTTP:
		if c.Endpoint == "" {
			return &kkerrors.ValidationError{
				Field:      "tracing.endpoint",
				Message:    fmt.Sprintf("required for exporter %q", c.Exporter),
				Suggestion: "set tracing.endpoint, for example localhost:4317",
			}
		}
	default:
		return &kkerrors.ValidationError{
			Field:      "tracing.exporter",
			Message:    fmt.Sprintf("unknown exporter %q", c.Exporter),
			Suggestion: "use none, console, otlp or otlp-http",
		}
	}

	if c.SampleRate < 0 || c.SampleRate > 1 {
		return &kkerrors.ValidationError{
			Field:   "tracing.sample_rate",
			Message: fmt.Sprintf("must be between 0 and 1, got %v", c.SampleRate),
		}
	}
	return nil
}
