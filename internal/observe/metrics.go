// Package observe provides application-wide observability primitives for
// bemo: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all bemo metrics.
const meterName = "github.com/bemo-assistant/bemo"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CaptureDuration tracks how long each microphone capture ran. Use with
	// attribute.String("purpose", "dictation"|"wake"|"barge_in").
	CaptureDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMFirstTokenDuration tracks the delay from request to first streamed
	// increment.
	LLMFirstTokenDuration metric.Float64Histogram

	// LLMDuration tracks total inference latency until the final event.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// PlaybackDuration tracks how long audio was played per reply.
	PlaybackDuration metric.Float64Histogram

	// TurnDuration tracks a whole turn from leaving Idle until returning to
	// it. Use with attribute.String("outcome", ...).
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Turns counts completed turns by outcome ("reply", "no_speech",
	// "stopped", "error", "game", "memory").
	Turns metric.Int64Counter

	// StateTransitions counts turn controller transitions. Use with
	// attribute.String("from", ...), attribute.String("to", ...).
	StateTransitions metric.Int64Counter

	// WakeDetections counts wake phrase matches by strategy.
	WakeDetections metric.Int64Counter

	// BargeIns counts replies interrupted by a spoken stop.
	BargeIns metric.Int64Counter

	// GameResults counts scored game rounds. Use with attribute.String("game", ...),
	// attribute.String("result", "win"|"loss"|"tie").
	GameResults metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTurns is 1 while a turn is in flight and 0 otherwise.
	ActiveTurns metric.Int64UpDownCounter

	// UIClients tracks the number of connected UI websocket clients.
	UIClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks status server request time, labelled with
	// "method" and the matched "route" pattern.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.CaptureDuration, "bemo.capture.duration", "Duration of a single microphone capture."},
		{&met.STTDuration, "bemo.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMFirstTokenDuration, "bemo.llm.first_token.duration", "Delay until the first streamed reply increment."},
		{&met.LLMDuration, "bemo.llm.duration", "Latency of a complete LLM reply."},
		{&met.TTSDuration, "bemo.tts.duration", "Latency of text-to-speech synthesis."},
		{&met.PlaybackDuration, "bemo.playback.duration", "Audio played per reply."},
		{&met.TurnDuration, "bemo.turn.duration", "Duration of a turn from wake to idle."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "bemo.provider.requests", "Total provider requests by provider, kind, and status."},
		{&met.Turns, "bemo.turns", "Completed turns by outcome."},
		{&met.StateTransitions, "bemo.state.transitions", "Turn controller state transitions."},
		{&met.WakeDetections, "bemo.wake.detections", "Wake phrase detections by strategy."},
		{&met.BargeIns, "bemo.barge_ins", "Replies interrupted by the user."},
		{&met.GameResults, "bemo.game.results", "Scored game rounds by game and result."},
		{&met.ProviderErrors, "bemo.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveTurns, err = m.Int64UpDownCounter("bemo.active_turns",
		metric.WithDescription("Number of turns currently in flight (0 or 1)."),
	); err != nil {
		return nil, err
	}
	if met.UIClients, err = m.Int64UpDownCounter("bemo.ui.clients",
		metric.WithDescription("Number of connected UI clients."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("bemo.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCapture records one capture with its purpose.
func (m *Metrics) RecordCapture(ctx context.Context, purpose string, d time.Duration) {
	m.CaptureDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("purpose", purpose)))
}

// RecordTransition records a turn controller state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTurnDuration records how long a finished turn took.
func (m *Metrics) RecordTurnDuration(ctx context.Context, outcome string, d time.Duration) {
	m.TurnDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordWake records a wake detection.
func (m *Metrics) RecordWake(ctx context.Context, strategy string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordGameResult records a scored game round.
func (m *Metrics) RecordGameResult(ctx context.Context, game, result string) {
	m.GameResults.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("game", game),
			attribute.String("result", result),
		),
	)
}
