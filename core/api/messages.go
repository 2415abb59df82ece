package api

import (
	"encoding/json"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/samber/lo"
)

type participant struct {
	Provider     string `json:"provider"`
	RoleLabel    string `json:"role_label"`
	SystemPrompt string `json:"system_prompt"`
}

type dialogConfig struct {
	Topic        string      `json:"topic"`
	ParticipantA participant `json:"participant_a"`
	ParticipantB participant `json:"participant_b"`
	MaxTurns     int         `json:"max_turns"`
	TokenDelayMs int         `json:"token_delay_ms"`
	Rules        string      `json:"rules"`
}

func toDialogConfig(cfg dialog.Config) (dialogConfig, error) {
	var wire dialogConfig
	if err := copier.CopyWithOption(&wire, cfg, copier.Option{DeepCopy: true}); err != nil {
		return dialogConfig{}, err
	}
	return wire, nil
}

func fromDialogConfig(wire dialogConfig) dialog.Config {
	var cfg dialog.Config
	// Both sides are plain value structs with identical field names.
	_ = copier.Copy(&cfg, wire)
	return cfg
}

type startRequest struct {
	Config dialogConfig `json:"config"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

type interveneRequest struct {
	Message string `json:"message"`
}

type interveneResponse struct {
	Continued bool `json:"continued"`
	MaxTurns  *int `json:"max_turns"`
}

type pauseResponse struct {
	Paused bool `json:"paused"`
}

type stateMessage struct {
	Provider    string `json:"provider"`
	RoleLabel   string `json:"role_label"`
	Content     string `json:"content"`
	IsModerator bool   `json:"is_moderator"`
}

type stateResponse struct {
	Config      dialogConfig   `json:"config"`
	Messages    []stateMessage `json:"messages"`
	CurrentTurn int            `json:"current_turn"`
	Finished    bool           `json:"finished"`
}

func (r stateResponse) toState() dialog.State {
	return dialog.State{
		Config: fromDialogConfig(r.Config),
		Messages: lo.Map(r.Messages, func(m stateMessage, _ int) dialog.Message {
			return dialog.Message{
				Provider:    dialog.Provider(m.Provider),
				RoleLabel:   m.RoleLabel,
				Content:     m.Content,
				IsModerator: m.IsModerator,
			}
		}),
		CurrentTurn: r.CurrentTurn,
		Finished:    r.Finished,
	}
}

// errorResponse is the backend's error body. Detail is either a message or
// a list of field errors.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type fieldError struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func (r errorResponse) message() string {
	if len(r.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(r.Detail, &text); err == nil {
		return text
	}

	var fieldErrors []fieldError
	if err := json.Unmarshal(r.Detail, &fieldErrors); err == nil && len(fieldErrors) > 0 {
		return strings.Join(lo.Map(fieldErrors, func(e fieldError, _ int) string { return e.Msg }), "; ")
	}

	return string(r.Detail)
}

// field returns the name of the first rejected field, if the backend named one.
func (r errorResponse) field() string {
	var fieldErrors []fieldError
	if err := json.Unmarshal(r.Detail, &fieldErrors); err != nil || len(fieldErrors) == 0 {
		return ""
	}

	loc := fieldErrors[0].Loc
	if len(loc) == 0 {
		return ""
	}
	name, _ := loc[len(loc)-1].(string)
	return name
}
