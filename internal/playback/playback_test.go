package playback_test

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/internal/playback"
	"github.com/bemo-assistant/bemo/pkg/audio"
	audiomock "github.com/bemo-assistant/bemo/pkg/audio/mock"
	ttsmock "github.com/bemo-assistant/bemo/pkg/provider/tts/mock"
	"github.com/bemo-assistant/bemo/pkg/types"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func constant(n int, v int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newWorker(t *testing.T, synth *ttsmock.Provider, out *audiomock.OutputDevice, opts ...playback.Option) *playback.Worker {
	t.Helper()
	w, err := playback.New(synth, out, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func assertRemoved(t *testing.T, synth *ttsmock.Provider) {
	t.Helper()
	for _, p := range synth.Paths() {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("synthesized file %s still exists", p)
		}
	}
}

func TestSpeak_PlaysAllBlocksWithLevels(t *testing.T) {
	t.Parallel()

	synth := &ttsmock.Provider{Samples: constant(2500, 3277), Dir: t.TempDir()}
	out := &audiomock.OutputDevice{}
	w := newWorker(t, synth, out)

	var levels []float64
	if err := w.Speak(context.Background(), "Hi there!", func(l float64) { levels = append(levels, l) }); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if got := synth.Texts(); len(got) != 1 || got[0] != "Hi there!" {
		t.Errorf("texts = %v", got)
	}
	blocks := out.Blocks()
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d, want 3 (1024+1024+452)", len(blocks))
	}
	if len(levels) != 3 {
		t.Fatalf("levels = %d, want one per block", len(levels))
	}
	for i, l := range levels {
		if math.Abs(l-0.1) > 0.001 {
			t.Errorf("level[%d] = %.4f, want ~0.1", i, l)
		}
	}
	if f := out.Formats(); len(f) != 1 || f[0] != (audio.Format{SampleRate: 16000, Channels: 1}) {
		t.Errorf("formats = %v", f)
	}
	if out.OpenStreams() != 0 {
		t.Error("output stream left open")
	}
	assertRemoved(t, synth)
}

func TestSpeak_StereoBlocksSpanChannels(t *testing.T) {
	t.Parallel()

	synth := &ttsmock.Provider{
		Samples: constant(4096, 100),
		Format:  audio.Format{SampleRate: 22050, Channels: 2},
		Dir:     t.TempDir(),
	}
	out := &audiomock.OutputDevice{}
	if err := newWorker(t, synth, out).Speak(context.Background(), "x", nil); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := len(out.Blocks()); got != 2 {
		t.Errorf("blocks = %d, want 2 stereo blocks of 1024 frames", got)
	}
}

func TestSpeak_CancelStopsWithinOneBlock(t *testing.T) {
	t.Parallel()

	synth := &ttsmock.Provider{Samples: constant(1024*50, 1000), Dir: t.TempDir()}
	out := &audiomock.OutputDevice{}
	w := newWorker(t, synth, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := 0
	err := w.Speak(ctx, "a long reply", func(float64) {
		n++
		if n == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := len(out.Blocks()); got != 2 {
		t.Errorf("blocks = %d after cancel, want 2", got)
	}
	if out.OpenStreams() != 0 {
		t.Error("output stream left open after cancel")
	}
	assertRemoved(t, synth)
}

func TestSpeak_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	synth := &ttsmock.Provider{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := newWorker(t, synth, &audiomock.OutputDevice{}).Speak(ctx, "hi", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(synth.Texts()) != 0 {
		t.Error("synthesizer called after cancellation")
	}
}

func TestSpeak_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		synth   *ttsmock.Provider
		out     *audiomock.OutputDevice
		want    error
		opened  int
		written int
	}{
		{
			name:  "synthesis fails",
			synth: &ttsmock.Provider{SynthesizeErr: errors.New("piper crashed")},
			out:   &audiomock.OutputDevice{},
			want:  types.ErrSynthesis,
		},
		{
			name:   "output open fails",
			synth:  &ttsmock.Provider{Samples: constant(2048, 1)},
			out:    &audiomock.OutputDevice{OpenErr: errors.New("no speaker")},
			want:   types.ErrDevice,
			opened: 1,
		},
		{
			name:   "write fails",
			synth:  &ttsmock.Provider{Samples: constant(2048, 1)},
			out:    &audiomock.OutputDevice{WriteErr: errors.New("unplugged")},
			want:   types.ErrDevice,
			opened: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tc.synth.Dir = t.TempDir()
			err := newWorker(t, tc.synth, tc.out).Speak(context.Background(), "hi", nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if tc.out.OpenCalls() != tc.opened {
				t.Errorf("OpenCalls = %d, want %d", tc.out.OpenCalls(), tc.opened)
			}
			if tc.out.OpenStreams() != 0 {
				t.Error("output stream left open")
			}
			assertRemoved(t, tc.synth)
		})
	}
}

func TestPlay_InvalidFile(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/junk.wav"
	if err := os.WriteFile(path, []byte("not a wav"), 0o600); err != nil {
		t.Fatal(err)
	}
	out := &audiomock.OutputDevice{}
	err := newWorker(t, &ttsmock.Provider{}, out).Play(context.Background(), path, nil)
	if !errors.Is(err, types.ErrSynthesis) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
	if out.OpenCalls() != 0 {
		t.Error("output opened for an invalid file")
	}
}

func TestSpeak_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	synth := &ttsmock.Provider{Samples: constant(1024, 1), Dir: t.TempDir()}
	w := newWorker(t, synth, &audiomock.OutputDevice{}, playback.WithMetrics(m), playback.WithProviderName("piper"))
	if err := w.Speak(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Speak: %v", err)
	}

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
	for _, name := range []string{"bemo.tts.duration", "bemo.playback.duration", "bemo.provider.requests"} {
		if !seen[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := playback.New(nil, &audiomock.OutputDevice{}); err == nil {
		t.Error("expected error for nil synthesizer")
	}
	if _, err := playback.New(&ttsmock.Provider{}, nil); err == nil {
		t.Error("expected error for nil output")
	}
	if _, err := playback.New(&ttsmock.Provider{}, &audiomock.OutputDevice{}, playback.WithBlockFrames(0)); err == nil {
		t.Error("expected error for zero block size")
	}
}
