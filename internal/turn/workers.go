package turn

import (
	"context"
	"strings"

	"github.com/bemo-assistant/bemo/internal/inference"
	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/internal/transcribe"
	"github.com/bemo-assistant/bemo/pkg/types"
)

type eventKind int

const (
	// Commands.
	evListen eventKind = iota
	evWake
	evStop
	evText
	evStartGame
	evGameInput
	evCamera
	evSettings

	// Worker reports.
	evTranscript
	evListenError
	evPartial
	evFinal
	evInferenceError
	evLevel
	evSpeechDone
	evSpeechError
	evBargeIn
	evSynthCheck
)

var eventNames = [...]string{
	evListen:         "listen",
	evWake:           "wake",
	evStop:           "stop",
	evText:           "text",
	evStartGame:      "start_game",
	evGameInput:      "game_input",
	evCamera:         "camera",
	evSettings:       "settings",
	evTranscript:     "transcript",
	evListenError:    "listen_error",
	evPartial:        "partial",
	evFinal:          "final",
	evInferenceError: "inference_error",
	evLevel:          "level",
	evSpeechDone:     "speech_done",
	evSpeechError:    "speech_error",
	evBargeIn:        "barge_in",
	evSynthCheck:     "synth_check",
}

func (k eventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

type event struct {
	kind     eventKind
	gen      uint64
	text     string
	level    float64
	err      error
	settings *Settings
}

// spawn cancels the worker in slot, gives it a new generation and returns
// the context the new goroutine must run under.
func (c *Controller) spawn(slot *worker) (context.Context, uint64) {
	slot.stop()
	c.gen++
	ctx, cancel := context.WithCancel(c.turnCtx())
	*slot = worker{gen: c.gen, cancel: cancel}
	return ctx, c.gen
}

func (c *Controller) goWorker(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Controller) startListening() {
	c.pauseWake()
	c.setState(Listening)
	s := c.snap
	ctx, gen := c.spawn(&c.listen)
	c.goWorker(func() { c.runListen(ctx, gen, s) })
}

func (c *Controller) runListen(ctx context.Context, gen uint64, s Settings) {
	u, err := c.capture.Capture(ctx, s.Dictation)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.post(event{kind: evListenError, gen: gen, err: err})
		return
	}
	if u.Empty() {
		c.post(event{kind: evTranscript, gen: gen})
		return
	}
	text, err := c.transcriber.Transcribe(ctx, u, transcribe.Options{Model: s.STTModel, Language: s.Language})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.post(event{kind: evListenError, gen: gen, err: err})
		return
	}
	c.post(event{kind: evTranscript, gen: gen, text: strings.TrimSpace(text)})
}

func (c *Controller) startInference(msgs []types.Message, userText string, vision bool) {
	c.stopWorkers()
	c.resumeWake()
	c.userText, c.vision = userText, vision
	c.setState(Thinking)
	c.notify(Notification{Kind: KindPartial})

	req := inference.Request{Messages: msgs, Model: c.snap.Model, Temperature: c.snap.Temperature}
	ctx, gen := c.spawn(&c.infer)
	c.goWorker(func() {
		for ev := range c.inference.Stream(ctx, req) {
			switch ev.Kind {
			case inference.Partial:
				c.post(event{kind: evPartial, gen: gen, text: ev.Text})
			case inference.Final:
				c.post(event{kind: evFinal, gen: gen, text: ev.Text})
			case inference.Error:
				c.post(event{kind: evInferenceError, gen: gen, err: ev.Err})
			}
		}
	})
}

func (c *Controller) startSpeaking(text string) {
	ctx, gen := c.spawn(&c.speak)
	c.goWorker(func() {
		err := c.speaker.Speak(ctx, text, func(level float64) {
			c.tryPost(event{kind: evLevel, gen: gen, level: level})
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.post(event{kind: evSpeechError, gen: gen, err: err})
			return
		}
		c.post(event{kind: evSpeechDone, gen: gen})
	})
}

func (c *Controller) startBargeIn() {
	ctx, gen := c.spawn(&c.barge)
	lang := c.snap.Language
	c.goWorker(func() {
		err := c.bargein.Run(ctx, lang, func() { c.post(event{kind: evBargeIn, gen: gen}) })
		if err != nil && ctx.Err() == nil {
			observe.Logger(ctx).Warn("turn: barge-in monitor stopped", "err", err)
		}
	})
}

// recheckSynth re-checks the synthesizer off the control goroutine.
func (c *Controller) recheckSynth() {
	ctx := c.ctx
	c.goWorker(func() {
		pctx, cancel := context.WithTimeout(ctx, defaultCheckTimeout)
		defer cancel()
		err := c.speaker.Available(pctx)
		if ctx.Err() != nil {
			return
		}
		c.post(event{kind: evSynthCheck, err: err})
	})
}
