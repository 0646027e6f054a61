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

// Package observability exposes doclens metrics through OpenTelemetry with
// a Prometheus exporter. A nil *Metrics is a valid no-op recorder, so
// callers never need to guard their instrumentation sites.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the doclens instruments.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	admissionDecisions metric.Int64Counter
	analyzeDuration    metric.Float64Histogram
	analyzeCalls       metric.Int64Counter
	analyzeErrors      metric.Int64Counter
	documentWords      metric.Int64Counter
	liveBuckets        metric.Int64ObservableGauge
}

// InitMetrics creates the meter provider and instruments. The Prometheus
// exporter registers with the default registry, so Handler() serves
// everything recorded here.
//
// bucketCount reports the number of live rate limit buckets; pass nil when
// the bucket store does not live in this process.
func InitMetrics(bucketCount func() int64) (*Metrics, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	meter := provider.Meter("doclens")

	m := &Metrics{provider: provider}

	m.admissionDecisions, err = meter.Int64Counter(
		"doclens_admission_decisions_total",
		metric.WithDescription("Admission decisions by route and outcome code"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admission decisions counter: %w", err)
	}

	m.analyzeDuration, err = meter.Float64Histogram(
		"doclens_analyze_duration_seconds",
		metric.WithDescription("Document analysis duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze duration histogram: %w", err)
	}

	m.analyzeCalls, err = meter.Int64Counter(
		"doclens_analyze_calls_total",
		metric.WithDescription("Total analysis calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze calls counter: %w", err)
	}

	m.analyzeErrors, err = meter.Int64Counter(
		"doclens_analyze_errors_total",
		metric.WithDescription("Total analysis errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze errors counter: %w", err)
	}

	m.documentWords, err = meter.Int64Counter(
		"doclens_document_words_total",
		metric.WithDescription("Total words extracted from analyzed documents"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document words counter: %w", err)
	}

	if bucketCount != nil {
		m.liveBuckets, err = meter.Int64ObservableGauge(
			"doclens_rate_limit_buckets",
			metric.WithDescription("Live rate limit buckets in the in-memory store"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(bucketCount())
				return nil
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket gauge: %w", err)
		}
	}

	return m, nil
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
