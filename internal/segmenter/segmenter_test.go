package segmenter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bemo-assistant/bemo/pkg/provider/vad"
	vadmock "github.com/bemo-assistant/bemo/pkg/provider/vad/mock"
)

const (
	testRate         = 16000
	testFrameSamples = 480 // 30 ms
)

// scriptSource serves frames from a slice, then silence forever.
type scriptSource struct {
	frames  [][]int16
	reads   int
	err     error
	onRead  func(n int)
	errFrom int
}

func (s *scriptSource) ReadFrame() ([]int16, error) {
	s.reads++
	if s.onRead != nil {
		s.onRead(s.reads)
	}
	if s.err != nil && s.reads >= s.errFrom {
		return nil, s.err
	}
	if s.reads-1 < len(s.frames) {
		return s.frames[s.reads-1], nil
	}
	return make([]int16, testFrameSamples), nil
}

func speechFrame() []int16 {
	f := make([]int16, testFrameSamples)
	for i := range f {
		f[i] = 1000
	}
	return f
}

func silenceFrame() []int16 { return make([]int16, testFrameSamples) }

func frames(silenceBefore, speech, silenceAfter int) [][]int16 {
	var out [][]int16
	for range silenceBefore {
		out = append(out, silenceFrame())
	}
	for range speech {
		out = append(out, speechFrame())
	}
	for range silenceAfter {
		out = append(out, silenceFrame())
	}
	return out
}

// amplitudeSession treats any non-zero first sample as speech.
func amplitudeSession() *vadmock.Session {
	return &vadmock.Session{Decide: func(f []int16) vad.Decision {
		return vad.Decision{Speech: len(f) > 0 && f[0] != 0}
	}}
}

func newTestSegmenter(t *testing.T, sess vad.SessionHandle) *Segmenter {
	t.Helper()
	fixed := time.Unix(0, 0)
	s, err := New(sess, testRate, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSegment_VoicedRegionWithinPreTriggerWindow(t *testing.T) {
	t.Parallel()

	c := Dictation
	tests := []struct {
		silenceBefore int
		speech        int
	}{
		{silenceBefore: 0, speech: 10},
		{silenceBefore: 3, speech: 15},
		{silenceBefore: 9, speech: 20},
		{silenceBefore: 20, speech: 40},
		{silenceBefore: 50, speech: 100},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("pre%d_speech%d", tc.silenceBefore, tc.speech), func(t *testing.T) {
			t.Parallel()

			silenceFrames := c.SilenceMs/30 + 1
			src := &scriptSource{frames: frames(tc.silenceBefore, tc.speech, silenceFrames)}
			u, err := newTestSegmenter(t, amplitudeSession()).Segment(context.Background(), src, c)
			if err != nil {
				t.Fatalf("Segment: %v", err)
			}
			if u.Truncated {
				t.Error("expected silence-terminated utterance, got truncated")
			}
			voicedMs := tc.speech * 30
			gotMs := int(u.Duration() / time.Millisecond)
			if gotMs < voicedMs || gotMs > voicedMs+300 {
				t.Errorf("duration = %d ms, want in [%d, %d]", gotMs, voicedMs, voicedMs+300)
			}
		})
	}
}

func TestSegment_NoSpeechReturnsEmptyAtHardLimit(t *testing.T) {
	t.Parallel()

	src := &scriptSource{}
	c := Constraints{MaxRecordMs: 1200, MinRecordMs: 200, SilenceMs: 300}
	u, err := newTestSegmenter(t, amplitudeSession()).Segment(context.Background(), src, c)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if !u.Empty() {
		t.Errorf("expected empty utterance, got %d samples", len(u.Samples))
	}
	// 1200 ms / 30 ms = 40 frames; the limit trips on the first frame past it.
	if src.reads != 41 {
		t.Errorf("reads = %d, want 41", src.reads)
	}
}

func TestSegment_WallClockHardLimit(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 0)
	s, err := New(amplitudeSession(), testRate, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Each read advances the wall clock by 500 ms, far faster than the audio.
	src := &scriptSource{onRead: func(int) { now = now.Add(500 * time.Millisecond) }}
	u, err := s.Segment(context.Background(), src, Constraints{MaxRecordMs: 1000, MinRecordMs: 0, SilenceMs: 300})
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if !u.Empty() {
		t.Error("expected empty utterance")
	}
	if src.reads != 3 {
		t.Errorf("reads = %d, want 3", src.reads)
	}
}

func TestSegment_TriggeredWithoutSilenceIsTruncated(t *testing.T) {
	t.Parallel()

	src := &scriptSource{frames: frames(0, 100, 0)}
	c := Constraints{MaxRecordMs: 900, MinRecordMs: 300, SilenceMs: 300}
	u, err := newTestSegmenter(t, amplitudeSession()).Segment(context.Background(), src, c)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if u.Empty() {
		t.Fatal("expected partial utterance, got empty")
	}
	if !u.Truncated {
		t.Error("expected Truncated = true")
	}
	if got := int(u.Duration() / time.Millisecond); got != 930 {
		t.Errorf("duration = %d ms, want 930", got)
	}
}

func TestSegment_ShortPauseDoesNotEndUtterance(t *testing.T) {
	t.Parallel()

	// speech 300 ms, pause 240 ms, speech 300 ms, then silence.
	var script [][]int16
	script = append(script, frames(0, 10, 8)...)
	script = append(script, frames(0, 10, 30)...)
	src := &scriptSource{frames: script}

	u, err := newTestSegmenter(t, amplitudeSession()).Segment(context.Background(), src, Dictation)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if got := int(u.Duration() / time.Millisecond); got != 840 {
		t.Errorf("duration = %d ms, want 840 (both phrases and the pause)", got)
	}
}

func TestSegment_CancellationDiscardsBuffer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptSource{frames: frames(0, 200, 0)}
	src.onRead = func(n int) {
		if n == 20 {
			cancel()
		}
	}
	u, err := newTestSegmenter(t, amplitudeSession()).Segment(ctx, src, Dictation)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !u.Empty() {
		t.Errorf("expected empty utterance on cancel, got %d samples", len(u.Samples))
	}
	if src.reads != 20 {
		t.Errorf("reads = %d, want 20 (stop on the cancelling frame)", src.reads)
	}
}

func TestSegment_AlreadyCancelledReadsNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptSource{}
	_, err := newTestSegmenter(t, amplitudeSession()).Segment(ctx, src, Dictation)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if src.reads != 0 {
		t.Errorf("reads = %d, want 0", src.reads)
	}
}

func TestSegment_ReadErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("device unplugged")
	src := &scriptSource{err: boom, errFrom: 3}
	_, err := newTestSegmenter(t, amplitudeSession()).Segment(context.Background(), src, Dictation)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestSegment_ClassifierErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("model exploded")
	sess := &vadmock.Session{ClassifyErr: boom}
	_, err := newTestSegmenter(t, sess).Segment(context.Background(), &scriptSource{}, Dictation)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestSegment_ResetsClassifier(t *testing.T) {
	t.Parallel()

	sess := amplitudeSession()
	_, _ = newTestSegmenter(t, sess).Segment(context.Background(), &scriptSource{}, BargeInWindow)
	if sess.ResetCount != 1 {
		t.Errorf("ResetCount = %d, want 1", sess.ResetCount)
	}
}

func TestConstraintsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		c       Constraints
		wantErr bool
	}{
		{name: "dictation", c: Dictation},
		{name: "wake", c: WakeWindow},
		{name: "barge-in", c: BargeInWindow},
		{name: "zero max", c: Constraints{MinRecordMs: 0, SilenceMs: 300}, wantErr: true},
		{name: "zero silence", c: Constraints{MaxRecordMs: 1000}, wantErr: true},
		{name: "min above max", c: Constraints{MaxRecordMs: 100, MinRecordMs: 200, SilenceMs: 50}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.c.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, testRate); err == nil {
		t.Error("expected error for nil classifier")
	}
	if _, err := New(amplitudeSession(), 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := New(amplitudeSession(), testRate, WithFrameMs(0)); err == nil {
		t.Error("expected error for zero frame duration")
	}
	s, err := New(amplitudeSession(), testRate)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.FrameSamples() != testFrameSamples {
		t.Errorf("FrameSamples() = %d, want %d", s.FrameSamples(), testFrameSamples)
	}
}
