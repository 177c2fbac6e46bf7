// Package observe provides the observability primitives of the decoder and
// server: OpenTelemetry metrics, tracing and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// wires a Prometheus exporter so they can be scraped from /metrics. Tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/ieee0824/onlineasr-go"

// Metrics holds all OpenTelemetry metric instruments.
// All fields are safe for concurrent use.
type Metrics struct {
	// FinalizeDuration tracks the latency of finalizing an utterance
	// (final search steps, lattice and best path).
	FinalizeDuration metric.Float64Histogram

	// ChunkDuration tracks the latency of one Decode call.
	ChunkDuration metric.Float64Histogram

	// RealTimeFactor tracks processing time divided by audio duration per utterance.
	RealTimeFactor metric.Float64Histogram

	// Utterances counts finalized utterances. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	Utterances metric.Int64Counter

	// AudioSeconds counts decoded audio.
	AudioSeconds metric.Float64Counter

	// ActiveSessions tracks decode sessions that have started but not been released.
	ActiveSessions metric.Int64UpDownCounter

	// ServerSessions tracks sessions held by the HTTP server.
	ServerSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

var rtfBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 4}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FinalizeDuration, err = m.Float64Histogram("onlineasr.finalize.duration",
		metric.WithDescription("Latency of finalizing an utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunkDuration, err = m.Float64Histogram("onlineasr.chunk.duration",
		metric.WithDescription("Latency of decoding one audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RealTimeFactor, err = m.Float64Histogram("onlineasr.real_time_factor",
		metric.WithDescription("Processing time over audio duration per utterance."),
		metric.WithExplicitBucketBoundaries(rtfBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("onlineasr.utterances",
		metric.WithDescription("Total finalized utterances by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.AudioSeconds, err = m.Float64Counter("onlineasr.audio",
		metric.WithDescription("Total decoded audio."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("onlineasr.active_sessions",
		metric.WithDescription("Number of live decode sessions."),
	); err != nil {
		return nil, err
	}
	if met.ServerSessions, err = m.Int64UpDownCounter("onlineasr.server.sessions",
		metric.WithDescription("Number of sessions held by the server."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("onlineasr.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return m
}

// RecordUtterance records a finalized utterance with the standard attribute set.
func (m *Metrics) RecordUtterance(ctx context.Context, backend, status string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}
