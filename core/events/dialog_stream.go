package events

import "github.com/koscakluka/ema-discuss/core/dialog"

const (
	// KindTurnStarted identifies the start of a participant's turn.
	KindTurnStarted Kind = "turn_start"
	// KindTokenReceived identifies an append-only text piece of the current turn.
	KindTokenReceived Kind = "token"
	// KindTurnEnded identifies the end of a turn, carrying the final content.
	KindTurnEnded Kind = "turn_end"
	// KindDialogEnded identifies the terminal event of a stream.
	KindDialogEnded Kind = "dialog_end"
)

// TurnStarted opens a new turn.
type TurnStarted struct {
	Base
	Turn      int
	Provider  dialog.Provider
	RoleLabel string
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(turn int, provider dialog.Provider, roleLabel string) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), Turn: turn, Provider: provider, RoleLabel: roleLabel}
}

// TokenReceived carries a streamed text segment. Turn is informational; the
// segment always belongs to the turn opened last.
type TokenReceived struct {
	Base
	Turn  int
	Token string
}

// NewTokenReceived creates a token event.
func NewTokenReceived(token string) TokenReceived {
	return TokenReceived{Base: NewBase(KindTokenReceived), Token: token}
}

// TurnEnded closes the current turn. Content is authoritative and may differ
// from the concatenation of the turn's tokens.
type TurnEnded struct {
	Base
	Turn      int
	Provider  dialog.Provider
	RoleLabel string
	Content   string
	Finished  bool
}

// NewTurnEnded creates a turn ended event.
func NewTurnEnded(content string) TurnEnded {
	return TurnEnded{Base: NewBase(KindTurnEnded), Content: content}
}

// DialogEnded is the last event of a stream instance.
type DialogEnded struct {
	Base
	TotalTurns int
}

// NewDialogEnded creates a dialog ended event.
func NewDialogEnded(totalTurns int) DialogEnded {
	return DialogEnded{Base: NewBase(KindDialogEnded), TotalTurns: totalTurns}
}
