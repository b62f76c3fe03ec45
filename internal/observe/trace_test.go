package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder installs an in-memory tracer provider as the global one for
// the duration of the test.
func useRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartTurn_RecordsTurnID(t *testing.T) {
	exp := useRecorder(t)

	ctx, span := StartTurn(context.Background(), "turn-42")
	if CorrelationID(ctx) == "" {
		t.Error("turn context has no trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "turn" {
		t.Errorf("span name = %q, want turn", spans[0].Name)
	}
	var got string
	for _, kv := range spans[0].Attributes {
		if string(kv.Key) == AttrTurnID {
			got = kv.Value.AsString()
		}
	}
	if got != "turn-42" {
		t.Errorf("%s attribute = %q, want turn-42", AttrTurnID, got)
	}
}

func TestStartTurn_WorkerSpansShareTrace(t *testing.T) {
	exp := useRecorder(t)

	ctx, turn := StartTurn(context.Background(), "t1")
	wctx, capture := StartSpan(ctx, "capture")
	if CorrelationID(wctx) != CorrelationID(ctx) {
		t.Error("worker span started a new trace")
	}
	capture.End()
	turn.End()

	if n := len(exp.GetSpans()); n != 2 {
		t.Errorf("recorded %d spans, want 2", n)
	}
}

func TestCorrelationID_UniquePerTurn(t *testing.T) {
	useRecorder(t)

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartTurn(context.Background(), "t")
		id := CorrelationID(ctx)
		span.End()
		if seen[id] {
			t.Fatalf("duplicate trace ID %s", id)
		}
		seen[id] = true
	}
}

func TestCorrelationID_NoSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name     string
		withSpan bool
		want     bool
	}{
		{name: "inside a turn", withSpan: true, want: true},
		{name: "outside a turn", withSpan: false, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useRecorder(t)
			buf := captureLogs(t)

			ctx := context.Background()
			if tt.withSpan {
				c, s := StartTurn(ctx, "t")
				defer s.End()
				ctx = c
			}
			Logger(ctx).Info("capture done")

			out := buf.String()
			if got := strings.Contains(out, "trace_id="); got != tt.want {
				t.Errorf("trace_id present = %v, want %v; log: %s", got, tt.want, out)
			}
			if got := strings.Contains(out, "span_id="); got != tt.want {
				t.Errorf("span_id present = %v, want %v; log: %s", got, tt.want, out)
			}
		})
	}
}
