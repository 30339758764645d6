// Package observe provides application-wide observability primitives for
// voxgate: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxgate metrics.
const meterName = "github.com/voxgate/voxgate"

// Metrics holds all OpenTelemetry metric instruments for the gateway.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks upstream completion latency (first send to done).
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks per-phrase speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts finished turns. Use with attribute:
	//   attribute.String("outcome", "completed"|"cancelled"|"error")
	Turns metric.Int64Counter

	// StateTransitions counts applied turn state transitions. Use with
	// attributes: attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// TTSChunks counts synthesized phrase chunks. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	TTSChunks metric.Int64Counter

	// WSFrames counts websocket frames. Use with attributes:
	//   attribute.String("direction", "in"|"out"), attribute.String("kind", "text"|"binary")
	WSFrames metric.Int64Counter

	// RateLimitDenials counts frames refused by a limiter. Use with
	// attribute: attribute.String("limiter", "message"|"llm")
	RateLimitDenials metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("provider", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveConnections tracks live websocket connections.
	ActiveConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("voxgate.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voxgate.llm.duration",
		metric.WithDescription("Latency of upstream completion streaming."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voxgate.tts.duration",
		metric.WithDescription("Latency of per-phrase speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("voxgate.turns",
		metric.WithDescription("Finished turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("voxgate.turn.transitions",
		metric.WithDescription("Applied turn state transitions by from and to state."),
	); err != nil {
		return nil, err
	}
	if met.TTSChunks, err = m.Int64Counter("voxgate.tts.chunks",
		metric.WithDescription("Synthesized phrase chunks by status."),
	); err != nil {
		return nil, err
	}
	if met.WSFrames, err = m.Int64Counter("voxgate.ws.frames",
		metric.WithDescription("Websocket frames by direction and kind."),
	); err != nil {
		return nil, err
	}
	if met.RateLimitDenials, err = m.Int64Counter("voxgate.ratelimit.denials",
		metric.WithDescription("Frames refused by a rate limiter."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("voxgate.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConnections, err = m.Int64UpDownCounter("voxgate.active_connections",
		metric.WithDescription("Number of live websocket connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxgate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn records one finished turn with its outcome.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordTransition records one applied turn state transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordTTSChunk records one synthesized phrase chunk.
func (m *Metrics) RecordTTSChunk(ctx context.Context, status string) {
	m.TTSChunks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordWSFrame records one websocket frame.
func (m *Metrics) RecordWSFrame(ctx context.Context, direction, kind string) {
	m.WSFrames.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("direction", direction),
			attribute.String("kind", kind),
		),
	)
}

// RecordRateLimitDenial records one frame refused by a limiter.
func (m *Metrics) RecordRateLimitDenial(ctx context.Context, limiter string) {
	m.RateLimitDenials.Add(ctx, 1,
		metric.WithAttributes(attribute.String("limiter", limiter)),
	)
}

// RecordBreakerTransition records one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("to", to),
		),
	)
}
