package controller

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/koscakluka/ema-discuss/core/events"
)

type sinkCall struct {
	Method    string
	TurnIndex int
	Provider  dialog.Provider
	RoleLabel string
	Text      string
	Content   FormattedContent
	Kind      StatusKind
	MaxTurns  int
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *recordingSink) record(call sinkCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *recordingSink) AppendMessageShell(turnIndex int, provider dialog.Provider, roleLabel string) {
	s.record(sinkCall{Method: "AppendMessageShell", TurnIndex: turnIndex, Provider: provider, RoleLabel: roleLabel})
}

func (s *recordingSink) AppendToken(text string) {
	s.record(sinkCall{Method: "AppendToken", Text: text})
}

func (s *recordingSink) FinalizeMessage(content FormattedContent) {
	s.record(sinkCall{Method: "FinalizeMessage", Content: content})
}

func (s *recordingSink) StatusNotice(kind StatusKind, text string) {
	s.record(sinkCall{Method: "StatusNotice", Kind: kind, Text: text})
}

func (s *recordingSink) TurnProgress(turn int, maxTurns int) {
	s.record(sinkCall{Method: "TurnProgress", TurnIndex: turn, MaxTurns: maxTurns})
}

func (s *recordingSink) ModeratorMessage(content FormattedContent) {
	s.record(sinkCall{Method: "ModeratorMessage", Content: content})
}

func (s *recordingSink) Calls(method string) []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	var calls []sinkCall
	for _, call := range s.calls {
		if method == "" || call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

type streamItem struct {
	event events.Event
	err   error
}

// fakeStream yields what is sent on its feed until the feed is closed (end
// of stream) or the stream itself is closed.
type fakeStream struct {
	feed       chan streamItem
	closed     chan struct{}
	closeOnce  sync.Once
	closeCalls atomic.Int32
}

// newFiniteStream returns a stream that ends after items.
func newFiniteStream(items ...streamItem) *fakeStream {
	s := newHeldStream(len(items))
	for _, item := range items {
		s.feed <- item
	}
	close(s.feed)
	return s
}

// newHeldStream returns a stream that stays open until closed.
func newHeldStream(buffer int) *fakeStream {
	return &fakeStream{
		feed:   make(chan streamItem, buffer),
		closed: make(chan struct{}),
	}
}

func eventItems(evs ...events.Event) []streamItem {
	items := make([]streamItem, 0, len(evs))
	for _, event := range evs {
		items = append(items, streamItem{event: event})
	}
	return items
}

func (s *fakeStream) Events(ctx context.Context) func(func(events.Event, error) bool) {
	return func(yield func(events.Event, error) bool) {
		for {
			select {
			case <-s.closed:
				return
			case <-ctx.Done():
				return
			case item, ok := <-s.feed:
				if !ok {
					return
				}
				if !yield(item.event, item.err) {
					return
				}
			}
		}
	}
}

func (s *fakeStream) Close() error {
	s.closeCalls.Add(1)
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeTransport struct {
	mu      sync.Mutex
	streams []*fakeStream
	opened  []string
}

func newFakeTransport(streams ...*fakeStream) *fakeTransport {
	return &fakeTransport{streams: streams}
}

func (t *fakeTransport) OpenStream(_ context.Context, sessionID string) (events.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.opened = append(t.opened, sessionID)
	if len(t.streams) == 0 {
		return newHeldStream(0), nil
	}
	stream := t.streams[0]
	t.streams = t.streams[1:]
	return stream, nil
}

func (t *fakeTransport) Opened() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.opened...)
}

type fakeAPI struct {
	mu sync.Mutex

	sessionID string
	startErr  error
	started   []dialog.Config
	// startGate, when set, holds StartSession until it is closed.
	startGate chan struct{}

	interveneResult dialog.InterventionResult
	interveneErr    error
	interventions   []string

	pauseStates []bool
	pauseErr    error

	deleteErr error
	deleted   chan string

	state dialog.State
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{sessionID: "session-1", deleted: make(chan string, 8)}
}

func (a *fakeAPI) StartSession(_ context.Context, cfg dialog.Config) (string, error) {
	a.mu.Lock()
	a.started = append(a.started, cfg)
	gate := a.startGate
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startErr != nil {
		return "", a.startErr
	}
	return a.sessionID, nil
}

func (a *fakeAPI) Started() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.started)
}

func (a *fakeAPI) Intervene(_ context.Context, _ string, message string) (dialog.InterventionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.interventions = append(a.interventions, message)
	return a.interveneResult, a.interveneErr
}

func (a *fakeAPI) TogglePause(context.Context, string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pauseErr != nil {
		return false, a.pauseErr
	}
	paused := a.pauseStates[0]
	a.pauseStates = a.pauseStates[1:]
	return paused, nil
}

func (a *fakeAPI) DeleteSession(_ context.Context, sessionID string) error {
	a.deleted <- sessionID
	return a.deleteErr
}

func (a *fakeAPI) SessionState(context.Context, string) (dialog.State, error) {
	return a.state, nil
}

func validConfig() dialog.Config {
	return dialog.Config{
		Topic:        "Should cities ban cars?",
		ParticipantA: dialog.Participant{Provider: dialog.ProviderOpenAI},
		ParticipantB: dialog.Participant{Provider: dialog.ProviderAnthropic},
		MaxTurns:     2,
		TokenDelayMs: 80,
	}
}
