package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-discuss/core/dialog"
)

// ErrUnknownKind is returned by [Decode] for event names outside the dialog
// contract. Streams skip such events instead of failing.
var ErrUnknownKind = errors.New("unknown event kind")

type turnStartedPayload struct {
	Turn      int    `json:"turn"`
	Provider  string `json:"provider"`
	RoleLabel string `json:"role_label"`
}

type tokenPayload struct {
	Turn  int    `json:"turn"`
	Token string `json:"token"`
}

type turnEndedPayload struct {
	Turn      int    `json:"turn"`
	Provider  string `json:"provider"`
	RoleLabel string `json:"role_label"`
	Content   string `json:"content"`
	Finished  bool   `json:"finished"`
}

type dialogEndedPayload struct {
	TotalTurns int `json:"total_turns"`
}

// Decode builds a typed event from a named stream frame.
func Decode(name string, data []byte) (Event, error) {
	switch Kind(name) {
	case KindTurnStarted:
		var payload turnStartedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("error unmarshalling %s event: %w", name, err)
		}
		event := NewTurnStarted(payload.Turn, dialog.Provider(payload.Provider), payload.RoleLabel)
		return event, nil

	case KindTokenReceived:
		var payload tokenPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("error unmarshalling %s event: %w", name, err)
		}
		event := NewTokenReceived(payload.Token)
		event.Turn = payload.Turn
		return event, nil

	case KindTurnEnded:
		var payload turnEndedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("error unmarshalling %s event: %w", name, err)
		}
		event := NewTurnEnded(payload.Content)
		event.Turn = payload.Turn
		event.Provider = dialog.Provider(payload.Provider)
		event.RoleLabel = payload.RoleLabel
		event.Finished = payload.Finished
		return event, nil

	case KindDialogEnded:
		var payload dialogEndedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("error unmarshalling %s event: %w", name, err)
		}
		return NewDialogEnded(payload.TotalTurns), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}
