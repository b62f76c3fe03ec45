package inference_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/bemo-assistant/bemo/internal/inference"
	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/pkg/provider/llm"
	"github.com/bemo-assistant/bemo/pkg/provider/llm/mock"
	"github.com/bemo-assistant/bemo/pkg/types"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func request() inference.Request {
	return inference.Request{
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "You are Bemo."},
			{Role: types.RoleUser, Content: "hello"},
		},
		Model:       "tinyllama:chat",
		Temperature: 0.6,
	}
}

func collect(ch <-chan inference.Event) []inference.Event {
	var out []inference.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func newWorker(t *testing.T, p llm.Provider) *inference.Worker {
	t.Helper()
	w, err := inference.New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestStream_PartialsGrowThenFinal(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{StreamChunks: []llm.Chunk{
		{Text: " Hel"}, {Text: ""}, {Text: "lo"}, {Text: " world "}, {FinishReason: "stop"},
	}}
	events := collect(newWorker(t, p).Stream(context.Background(), request()))

	var partials []string
	for _, ev := range events[:len(events)-1] {
		if ev.Kind != inference.Partial {
			t.Fatalf("unexpected %v event before the end", ev.Kind)
		}
		partials = append(partials, ev.Text)
	}
	if want := []string{" Hel", " Hello", " Hello world "}; !slices.Equal(partials, want) {
		t.Errorf("partials = %q, want %q", partials, want)
	}
	last := events[len(events)-1]
	if last.Kind != inference.Final || last.Text != "Hello world" {
		t.Errorf("last = %+v, want Final %q", last, "Hello world")
	}
}

func TestStream_ForwardsRequest(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "ok", FinishReason: "stop"}}}
	_ = collect(newWorker(t, p).Stream(context.Background(), request()))

	calls := p.StreamCalls()
	if len(calls) != 1 {
		t.Fatalf("StreamCalls = %d, want 1", len(calls))
	}
	got := calls[0].Req
	if got.Model != "tinyllama:chat" || got.Temperature != 0.6 || len(got.Messages) != 2 {
		t.Errorf("request = %+v", got)
	}
}

func TestStream_CancelStopsEvents(t *testing.T) {
	t.Parallel()

	chunks := make([]llm.Chunk, 200)
	for i := range chunks {
		chunks[i] = llm.Chunk{Text: "word "}
	}
	// The backend ignores cancellation and keeps producing.
	p := &mock.Provider{StreamChunks: chunks, ChunkDelay: time.Millisecond, IgnoreCancel: true}

	ctx, cancel := context.WithCancel(context.Background())
	ch := newWorker(t, p).Stream(ctx, request())

	first := <-ch
	if first.Kind != inference.Partial {
		t.Fatalf("first event = %v, want partial", first.Kind)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("event delivered after cancel: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event channel not closed after cancel")
	}
}

func TestStream_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "hi"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if events := collect(newWorker(t, p).Stream(ctx, request())); len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
	if len(p.StreamCalls()) != 0 {
		t.Error("provider called after cancellation")
	}
}

func TestStream_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		provider     *mock.Provider
		wantPartials int
	}{
		{
			name:     "stream fails to start",
			provider: &mock.Provider{StreamErr: errors.New("connection refused")},
		},
		{
			name: "stream fails midway",
			provider: &mock.Provider{StreamChunks: []llm.Chunk{
				{Text: "Once upon"},
				{FinishReason: llm.FinishReasonError, Text: "unexpected EOF"},
				{Text: " a time"},
			}},
			wantPartials: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			events := collect(newWorker(t, tc.provider).Stream(context.Background(), request()))
			if len(events) != tc.wantPartials+1 {
				t.Fatalf("events = %+v, want %d partials and one error", events, tc.wantPartials)
			}
			last := events[len(events)-1]
			if last.Kind != inference.Error {
				t.Fatalf("last event = %v, want error", last.Kind)
			}
			if !errors.Is(last.Err, types.ErrInferenceTransport) {
				t.Errorf("err = %v, want ErrInferenceTransport", last.Err)
			}
		})
	}
}

func TestStream_EmptyReplyIsFinal(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "  "}, {FinishReason: "stop"}}}
	events := collect(newWorker(t, p).Stream(context.Background(), request()))
	last := events[len(events)-1]
	if last.Kind != inference.Final || last.Text != "" {
		t.Errorf("last = %+v, want empty Final", last)
	}
}

func TestStream_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	p := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "hi"}, {FinishReason: "stop"}}}
	w, err := inference.New(p, inference.WithMetrics(m), inference.WithProviderName("ollama"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = collect(w.Stream(context.Background(), request()))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	seen := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			seen[md.Name] = true
		}
	}
	for _, name := range []string{"bemo.llm.first_token.duration", "bemo.llm.duration", "bemo.provider.requests"} {
		if !seen[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}

func TestEventKind_String(t *testing.T) {
	t.Parallel()

	if inference.Partial.String() != "partial" || inference.Final.String() != "final" || inference.Error.String() != "error" {
		t.Error("unexpected EventKind names")
	}
}
