package controller

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/koscakluka/ema-discuss/core/events"
)

type assemblerState int

const (
	assemblerIdle assemblerState = iota
	assemblerAccumulating
	assemblerTerminated
)

func (s assemblerState) String() string {
	switch s {
	case assemblerIdle:
		return "idle"
	case assemblerAccumulating:
		return "accumulating"
	case assemblerTerminated:
		return "terminated"
	}
	return fmt.Sprintf("assemblerState(%d)", int(s))
}

// Message is one participant turn as reconstructed from the stream.
type Message struct {
	ID        string
	TurnIndex int
	Provider  dialog.Provider
	RoleLabel string

	// AccumulatedText is the concatenation of the streamed tokens until the
	// message is finalized, and the authoritative content afterwards.
	AccumulatedText string
	Finalized       bool
	Content         FormattedContent
}

type pendingMessage struct {
	Message
	text *textBuffer
}

func (m *pendingMessage) snapshot() Message {
	message := m.Message
	message.AccumulatedText = m.text.String()
	return message
}

// turnAssembler rebuilds messages from stream events. It holds at most one
// message that is not finalized.
type turnAssembler struct {
	session *SessionState
	sink    PresentationSink

	state     assemblerState
	current   *pendingMessage
	finalized []Message
}

func newTurnAssembler(session *SessionState, sink PresentationSink) *turnAssembler {
	return &turnAssembler{session: session, sink: sink, state: assemblerIdle}
}

func (a *turnAssembler) turnStarted(e events.TurnStarted) error {
	if a.state == assemblerTerminated {
		return &dialog.ProtocolViolation{Kind: string(e.Kind()), Reason: "dialog already ended"}
	}

	if a.current != nil {
		logger.Debug("replacing unfinished turn", "abandoned_turn", a.current.TurnIndex, "turn", e.Turn)
	}

	a.current = &pendingMessage{
		Message: Message{
			ID:        uuid.NewString(),
			TurnIndex: e.Turn,
			Provider:  e.Provider,
			RoleLabel: e.RoleLabel,
		},
		text: newTextBuffer(),
	}
	a.state = assemblerAccumulating

	a.sink.AppendMessageShell(e.Turn, e.Provider, e.RoleLabel)
	if progressSink, ok := a.sink.(TurnProgressSink); ok {
		progressSink.TurnProgress(e.Turn+1, a.session.MaxTurns)
	}
	return nil
}

func (a *turnAssembler) tokenReceived(e events.TokenReceived) error {
	if a.state != assemblerAccumulating || a.current == nil {
		return &dialog.ProtocolViolation{Kind: string(e.Kind()), Reason: "no turn in progress while " + a.state.String()}
	}

	a.current.text.AddChunk(e.Token)
	a.sink.AppendToken(e.Token)
	return nil
}

func (a *turnAssembler) turnEnded(e events.TurnEnded) error {
	if a.state != assemblerAccumulating || a.current == nil {
		return &dialog.ProtocolViolation{Kind: string(e.Kind()), Reason: "no turn in progress while " + a.state.String()}
	}

	a.current.text.Replace(e.Content)
	message := a.current.snapshot()
	message.Finalized = true
	message.Content = FormatContent(e.Content)

	a.finalized = append(a.finalized, message)
	a.current = nil
	a.state = assemblerIdle

	a.sink.FinalizeMessage(message.Content)
	return nil
}

func (a *turnAssembler) dialogEnded(e events.DialogEnded) error {
	if a.current != nil {
		logger.Debug("dialog ended during unfinished turn", "turn", a.current.TurnIndex)
	}
	a.current = nil
	a.state = assemblerTerminated

	a.sink.StatusNotice(StatusFinished, fmt.Sprintf("Dialog finished after %d turns", e.TotalTurns))
	return nil
}

// toIdle drops the unfinished message and leaves Terminated, so a reopened
// stream can continue the dialog. Finished messages are kept.
func (a *turnAssembler) toIdle() {
	a.current = nil
	a.state = assemblerIdle
}

func (a *turnAssembler) reset() {
	a.current = nil
	a.finalized = nil
	a.state = assemblerIdle
}

func (a *turnAssembler) messages() []Message {
	messages := make([]Message, 0, len(a.finalized)+1)
	messages = append(messages, a.finalized...)
	if a.current != nil {
		messages = append(messages, a.current.snapshot())
	}
	return messages
}

func (a *turnAssembler) pending() int {
	if a.current == nil {
		return 0
	}
	return 1
}
