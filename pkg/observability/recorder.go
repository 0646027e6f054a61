// Copyright 2025 The Doclens Authors
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

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RecordAdmission counts one admission decision. An empty code means the
// request was allowed.
func (m *Metrics) RecordAdmission(ctx context.Context, route, code string) {
	if m == nil || m.admissionDecisions == nil {
		return
	}

	if code == "" {
		code = "ALLOWED"
	}
	m.admissionDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("code", code),
	))
}

// RecordAnalyze records one analysis call: duration, outcome, and the
// size of the analyzed document.
func (m *Metrics) RecordAnalyze(ctx context.Context, format string, duration time.Duration, words int, err error) {
	if m == nil || m.analyzeDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("format", format))

	m.analyzeDuration.Record(ctx, duration.Seconds(), attrs)
	m.analyzeCalls.Add(ctx, 1, attrs)

	if words > 0 {
		m.documentWords.Add(ctx, int64(words), attrs)
	}
	if err != nil {
		m.analyzeErrors.Add(ctx, 1, attrs)
	}
}
