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

package minilog

import (
	"bytes"
	"log/slog"
)

// entryWriter turns each Write from a slog handler into one log entry.
// slog's built-in handlers issue exactly one Write per record.
type entryWriter struct {
	l *Logger
}

func (w entryWriter) Write(p []byte) (int, error) {
	if err := w.l.Log(string(bytes.TrimRight(p, "\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// NewHandler returns a slog.Handler that records each log record as a
// minilog entry in logfmt form. Attributes and groups added with
// WithAttrs/WithGroup are preserved.
func NewHandler(l *Logger, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewTextHandler(entryWriter{l: l}, opts)
}
