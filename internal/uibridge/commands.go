package uibridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bemo-assistant/bemo/internal/turn"
)

// CommandType names a UI command.
type CommandType string

const (
	CmdListen    CommandType = "listen"
	CmdStop      CommandType = "stop"
	CmdSubmit    CommandType = "submit"
	CmdStartGame CommandType = "start_game"
	CmdGameInput CommandType = "game_input"
	CmdCamera    CommandType = "camera"
	CmdSettings  CommandType = "settings"
)

// Command is one message from the UI.
type Command struct {
	Type     CommandType    `json:"type"`
	Text     string         `json:"text,omitempty"`
	Game     string         `json:"game,omitempty"`
	Settings *SettingsPatch `json:"settings,omitempty"`
}

// SettingsPatch carries the settings form. Nil fields keep their current
// value.
type SettingsPatch struct {
	SystemPrompt  *string  `json:"system_prompt,omitempty"`
	Model         *string  `json:"model,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	HistoryWindow *int     `json:"history_window,omitempty"`
	STTModel      *string  `json:"stt_model,omitempty"`
	Language      *string  `json:"language,omitempty"`
	WakePhrase    *string  `json:"wake_phrase,omitempty"`
	CameraEnabled *bool    `json:"camera_enabled,omitempty"`
}

// Apply returns s with the patch's non-nil fields applied.
func (p SettingsPatch) Apply(s turn.Settings) (turn.Settings, error) {
	if p.Temperature != nil {
		if *p.Temperature < 0 || *p.Temperature > 2 {
			return s, fmt.Errorf("Temperature must be between 0 and 2, got %g.", *p.Temperature)
		}
		s.Temperature = *p.Temperature
	}
	if p.HistoryWindow != nil {
		if *p.HistoryWindow < 0 {
			return s, errors.New("History window must not be negative.")
		}
		s.HistoryWindow = *p.HistoryWindow
	}
	if p.SystemPrompt != nil {
		s.SystemPrompt = *p.SystemPrompt
	}
	if p.Model != nil {
		s.Model = strings.TrimSpace(*p.Model)
	}
	if p.STTModel != nil {
		s.STTModel = strings.TrimSpace(*p.STTModel)
	}
	if p.Language != nil {
		s.Language = strings.ToLower(strings.TrimSpace(*p.Language))
	}
	if p.WakePhrase != nil {
		s.WakePhrase = strings.TrimSpace(*p.WakePhrase)
	}
	if p.CameraEnabled != nil {
		s.CameraEnabled = *p.CameraEnabled
	}
	return s, nil
}

// Dispatch forwards cmd to the controller. The returned error is a
// user-facing description of why the command was rejected.
func (b *Bridge) Dispatch(cmd Command) error {
	ctrl := b.controller()
	if ctrl == nil {
		return errors.New("Assistant is still starting.")
	}
	switch cmd.Type {
	case CmdListen:
		ctrl.Listen()
	case CmdStop:
		ctrl.Stop()
	case CmdSubmit:
		if strings.TrimSpace(cmd.Text) == "" {
			return nil
		}
		ctrl.Submit(cmd.Text)
	case CmdStartGame:
		if cmd.Game == "" {
			return errors.New("No game selected.")
		}
		ctrl.StartGame(cmd.Game)
	case CmdGameInput:
		if strings.TrimSpace(cmd.Text) == "" {
			return nil
		}
		ctrl.GameInput(cmd.Text)
	case CmdCamera:
		ctrl.CameraRequest()
	case CmdSettings:
		if cmd.Settings == nil {
			return errors.New("Settings command without settings.")
		}
		s, err := cmd.Settings.Apply(ctrl.Settings())
		if err != nil {
			return err
		}
		ctrl.UpdateSettings(s)
		if b.onSettings != nil {
			b.onSettings(s)
		}
	default:
		return fmt.Errorf("Unknown command %q.", cmd.Type)
	}
	return nil
}
