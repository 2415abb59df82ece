package terminal

import (
	tea "github.com/charmbracelet/bubbletea"
	controller "github.com/koscakluka/ema-discuss/core"
	"github.com/koscakluka/ema-discuss/core/dialog"
)

type (
	messageShellMsg struct {
		TurnIndex int
		Provider  dialog.Provider
		RoleLabel string
	}
	tokenMsg    struct{ Text string }
	finalizeMsg struct{ Content controller.FormattedContent }
	statusMsg   struct {
		Kind controller.StatusKind
		Text string
	}
	progressMsg struct {
		Turn     int
		MaxTurns int
	}
	moderatorMsg    struct{ Content controller.FormattedContent }
	streamClosedMsg struct{ Err error }
	resetMsg        struct{}
)

type sender interface {
	Send(msg tea.Msg)
}

var (
	_ controller.PresentationSink = (*Sink)(nil)
	_ controller.TurnProgressSink = (*Sink)(nil)
	_ controller.ModeratorSink    = (*Sink)(nil)
)

// Sink forwards render instructions to a running bubbletea program.
type Sink struct {
	program sender
}

func NewSink(program sender) *Sink {
	return &Sink{program: program}
}

func (s *Sink) AppendMessageShell(turnIndex int, provider dialog.Provider, roleLabel string) {
	s.program.Send(messageShellMsg{TurnIndex: turnIndex, Provider: provider, RoleLabel: roleLabel})
}

func (s *Sink) AppendToken(text string) {
	s.program.Send(tokenMsg{Text: text})
}

func (s *Sink) FinalizeMessage(content controller.FormattedContent) {
	s.program.Send(finalizeMsg{Content: content})
}

func (s *Sink) StatusNotice(kind controller.StatusKind, text string) {
	s.program.Send(statusMsg{Kind: kind, Text: text})
}

func (s *Sink) TurnProgress(turn int, maxTurns int) {
	s.program.Send(progressMsg{Turn: turn, MaxTurns: maxTurns})
}

func (s *Sink) ModeratorMessage(content controller.FormattedContent) {
	s.program.Send(moderatorMsg{Content: content})
}

// StreamClosed reports an unexpected end of the dialog stream. It fits
// [controller.WithStreamClosedCallback].
func (s *Sink) StreamClosed(err error) {
	s.program.Send(streamClosedMsg{Err: err})
}

// Reset tells the program the dialog was reset. It fits
// [controller.WithResetCallback].
func (s *Sink) Reset() {
	s.program.Send(resetMsg{})
}
