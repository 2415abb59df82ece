package controller

import (
	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/samber/lo"
)

type StatusKind string

const (
	StatusPaused   StatusKind = "paused"
	StatusResumed  StatusKind = "resumed"
	StatusStopped  StatusKind = "stopped"
	StatusFinished StatusKind = "finished"
)

// PresentationSink receives render instructions. Calls are made while the
// controller holds its lock, so implementations must not call back into the
// controller synchronously.
type PresentationSink interface {
	AppendMessageShell(turnIndex int, provider dialog.Provider, roleLabel string)
	AppendToken(text string)
	FinalizeMessage(content FormattedContent)
	StatusNotice(kind StatusKind, text string)
}

// TurnProgressSink is implemented by sinks that display a turn counter. turn
// is one-based.
type TurnProgressSink interface {
	TurnProgress(turn int, maxTurns int)
}

// ModeratorSink is implemented by sinks that echo the operator's own
// interventions.
type ModeratorSink interface {
	ModeratorMessage(content FormattedContent)
}

type noopSink struct{}

func (noopSink) AppendMessageShell(int, dialog.Provider, string) {}
func (noopSink) AppendToken(string)                              {}
func (noopSink) FinalizeMessage(FormattedContent)                {}
func (noopSink) StatusNotice(StatusKind, string)                 {}

// MultiSink fans every instruction out to all of its sinks in order.
// Optional extensions are forwarded to the sinks implementing them.
type MultiSink []PresentationSink

func (m MultiSink) AppendMessageShell(turnIndex int, provider dialog.Provider, roleLabel string) {
	lo.ForEach(m, func(sink PresentationSink, _ int) { sink.AppendMessageShell(turnIndex, provider, roleLabel) })
}

func (m MultiSink) AppendToken(text string) {
	lo.ForEach(m, func(sink PresentationSink, _ int) { sink.AppendToken(text) })
}

func (m MultiSink) FinalizeMessage(content FormattedContent) {
	lo.ForEach(m, func(sink PresentationSink, _ int) { sink.FinalizeMessage(content) })
}

func (m MultiSink) StatusNotice(kind StatusKind, text string) {
	lo.ForEach(m, func(sink PresentationSink, _ int) { sink.StatusNotice(kind, text) })
}

func (m MultiSink) TurnProgress(turn int, maxTurns int) {
	for _, sink := range m {
		if progressSink, ok := sink.(TurnProgressSink); ok {
			progressSink.TurnProgress(turn, maxTurns)
		}
	}
}

func (m MultiSink) ModeratorMessage(content FormattedContent) {
	for _, sink := range m {
		if moderatorSink, ok := sink.(ModeratorSink); ok {
			moderatorSink.ModeratorMessage(content)
		}
	}
}
