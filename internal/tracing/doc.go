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

/*
Package tracing provides OpenTelemetry tracing for kernel launches and
client requests.

# Spans

Launches and requests open spans through the global tracer returned by
Tracer:

	ctx, span := tracing.StartLaunch(ctx, tracing.Tracer(), cmd.String())
	defer span.End()

	ctx, span := tracing.StartRequest(ctx, tracer, "shell", "execute_request")

Span methods are nil-safe, so instrumented code never checks whether
tracing is enabled.

# Export

Tracing is off until a Provider is installed. NewProvider builds an SDK
tracer provider with the configured exporter and registers it globally:

	p, err := tracing.NewProvider(ctx, tracing.Config{
	    Exporter:   tracing.ExporterConsole,
	    SampleRate: 1.0,
	}, os.Stderr)
	defer p.Shutdown(ctx)

Supported exporters:

	none       tracing disabled (default)
	console    pretty-printed spans on the given writer
	otlp       OTLP over gRPC (endpoint like "localhost:4317")
	otlp-http  OTLP over HTTP (endpoint like "localhost:4318")
*/
package tracing
