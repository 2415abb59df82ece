package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/ema-discuss/core/dialog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const deleteTimeout = 10 * time.Second

// SessionState is the controller's view of the active session. A zero
// SessionID means there is no session.
type SessionState struct {
	SessionID string
	Config    dialog.Config
	// MaxTurns starts at Config.MaxTurns and grows when an intervention
	// extends a finished dialog.
	MaxTurns int
	Paused   bool
	// StreamOpen is only filled in snapshots; the subscriber owns the handle.
	StreamOpen bool
}

// Controller drives one dialog session at a time: it starts sessions,
// follows their event stream and applies operator commands.
//
// All state is guarded by a single lock. Remote calls are made without it,
// stream events and sink calls run under it.
type Controller struct {
	mu         sync.Mutex
	session    SessionState
	starting   bool
	closed     bool
	// resets counts Reset calls so a Start in flight notices one.
	resets     uint64
	assembler  *turnAssembler
	subscriber *streamSubscriber

	api            SessionAPI
	transport      StreamTransport
	sink           PresentationSink
	builder        *dialog.Builder
	onReset        func()
	onStreamClosed func(err error)

	background sync.WaitGroup
	closeOnce  sync.Once
}

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		sink:    noopSink{},
		builder: dialog.NewBuilder(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.assembler = newTurnAssembler(&c.session, c.sink)
	c.subscriber = newStreamSubscriber(&c.mu, c.transport, newAssemblerDispatchTable(c.assembler))
	c.subscriber.onTerminated = c.streamTerminated

	return c
}

// Start creates a remote session for cfg and subscribes to its stream.
//
// cfg is validated locally first; a config the backend rejects is reported
// as a [*dialog.ValidationError], a failed request as a
// [*dialog.TransportError]. Neither changes the controller's state.
func (c *Controller) Start(ctx context.Context, cfg dialog.Config) (string, error) {
	ctx, span := tracer.Start(ctx, "start dialog")
	defer span.End()
	span.SetAttributes(
		attribute.Int("dialog.max_turns", cfg.MaxTurns),
		attribute.String("dialog.participant_a", string(cfg.ParticipantA.Provider)),
		attribute.String("dialog.participant_b", string(cfg.ParticipantB.Provider)),
	)

	if err := c.builder.Validate(cfg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if c.api == nil {
		err := errors.New("no session api configured")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		span.SetStatus(codes.Error, ErrControllerClosed.Error())
		return "", ErrControllerClosed
	}
	if c.session.SessionID != "" || c.starting {
		c.mu.Unlock()
		span.SetStatus(codes.Error, ErrSessionActive.Error())
		return "", ErrSessionActive
	}
	c.starting = true
	resets := c.resets
	c.mu.Unlock()

	sessionID, err := c.api.StartSession(ctx, cfg)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("session_id", sessionID))

	if c.closed || c.resets != resets {
		closed := c.closed
		if !closed {
			c.deleteInBackground(ctx, sessionID)
		}
		c.mu.Unlock()

		// Close may already be waiting on background work, so the orphan is
		// deleted on this goroutine instead.
		if closed {
			c.deleteSession(ctx, sessionID)
		}
		span.SetStatus(codes.Error, ErrStartAborted.Error())
		return "", ErrStartAborted
	}
	defer c.mu.Unlock()

	c.session = SessionState{
		SessionID: sessionID,
		Config:    cfg,
		MaxTurns:  cfg.MaxTurns,
		Paused:    false,
	}
	c.assembler.reset()

	if err := c.subscriber.open(ctx, sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return sessionID, err
	}

	return sessionID, nil
}

// TogglePause flips the remote pause state. The local state follows the
// server's answer, never the request.
func (c *Controller) TogglePause(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "toggle dialog pause")
	defer span.End()

	sessionID, err := c.activeSessionID()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(attribute.String("session_id", sessionID))

	paused, err := c.api.TogglePause(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(attribute.Bool("dialog.paused", paused))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.SessionID != sessionID {
		span.AddEvent("session changed during request")
		return paused, nil
	}

	c.session.Paused = paused
	if paused {
		c.sink.StatusNotice(StatusPaused, "Dialog paused")
	} else {
		c.sink.StatusNotice(StatusResumed, "Dialog resumed")
	}
	return paused, nil
}

// Intervene sends a moderator message into the session.
//
// When the server continues the dialog, the controller reopens the stream
// exactly once and takes the new turn limit if the server sent one.
func (c *Controller) Intervene(ctx context.Context, message string) (dialog.InterventionResult, error) {
	ctx, span := tracer.Start(ctx, "intervene in dialog")
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		err := &dialog.ValidationError{Field: "message", Reason: "must not be empty"}
		span.SetStatus(codes.Error, err.Error())
		return dialog.InterventionResult{}, err
	}

	sessionID, err := c.activeSessionID()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return dialog.InterventionResult{}, err
	}
	span.SetAttributes(attribute.String("session_id", sessionID))

	result, err := c.api.Intervene(ctx, sessionID, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dialog.InterventionResult{}, err
	}
	span.SetAttributes(attribute.Bool("dialog.continued", result.Continued))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.SessionID != sessionID {
		span.AddEvent("session changed during request")
		return result, nil
	}

	if moderatorSink, ok := c.sink.(ModeratorSink); ok {
		moderatorSink.ModeratorMessage(FormatContent(message))
	}

	if !result.Continued {
		return result, nil
	}

	if result.MaxTurns != nil {
		c.session.MaxTurns = *result.MaxTurns
		span.SetAttributes(attribute.Int("dialog.max_turns", c.session.MaxTurns))
	}

	c.subscriber.close()
	c.assembler.toIdle()
	if err := c.subscriber.open(ctx, sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	streamReopens.Add(ctx, 1)

	return result, nil
}

// Stop ends the session locally right away. The remote session is deleted
// in the background and failures to do so are only logged.
func (c *Controller) Stop(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "stop dialog")
	defer span.End()

	c.mu.Lock()
	sessionID := c.session.SessionID
	if sessionID == "" {
		c.mu.Unlock()
		span.SetStatus(codes.Error, ErrNoSession.Error())
		return ErrNoSession
	}
	c.endSessionLocked()
	c.assembler.toIdle()
	c.sink.StatusNotice(StatusStopped, "Dialog stopped by user")
	c.mu.Unlock()

	span.SetAttributes(attribute.String("session_id", sessionID))
	c.deleteInBackground(ctx, sessionID)
	return nil
}

// Reset tears the session down like [Controller.Stop] without a status
// notice, forgets all messages and hands control back to the host through
// the reset callback. It succeeds without an active session.
func (c *Controller) Reset(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "reset dialog")
	defer span.End()

	c.mu.Lock()
	sessionID := c.session.SessionID
	c.resets++
	c.endSessionLocked()
	c.assembler.reset()
	c.mu.Unlock()

	if sessionID != "" {
		span.SetAttributes(attribute.String("session_id", sessionID))
		c.deleteInBackground(ctx, sessionID)
	}

	if c.onReset != nil {
		c.onReset()
	}
	return nil
}

// Snapshot returns a point-in-time copy of the session state.
func (c *Controller) Snapshot() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.session
	snapshot.StreamOpen = c.subscriber.isOpen()
	return snapshot
}

// Messages returns the messages of the current session in turn order,
// including the one still streaming.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.assembler.messages()
}

// RemoteState fetches the backend's record of the active session.
func (c *Controller) RemoteState(ctx context.Context) (dialog.State, error) {
	ctx, span := tracer.Start(ctx, "get remote dialog state")
	defer span.End()

	sessionID, err := c.activeSessionID()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return dialog.State{}, err
	}

	state, err := c.api.SessionState(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dialog.State{}, err
	}
	return state, nil
}

// Close ends any active session and waits for stream readers and pending
// deletes to finish. The controller cannot be started again afterwards.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		sessionID := c.session.SessionID
		c.endSessionLocked()
		c.mu.Unlock()

		if sessionID != "" {
			c.deleteInBackground(context.Background(), sessionID)
		}

		c.subscriber.wait()
		c.background.Wait()
	})
}

func (c *Controller) activeSessionID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.SessionID == "" {
		return "", ErrNoSession
	}
	if c.api == nil {
		return "", errors.New("no session api configured")
	}
	return c.session.SessionID, nil
}

func (c *Controller) endSessionLocked() {
	c.subscriber.close()
	c.session = SessionState{}
}

func (c *Controller) deleteInBackground(ctx context.Context, sessionID string) {
	if c.api == nil {
		return
	}

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		c.deleteSession(ctx, sessionID)
	}()
}

// deleteSession deletes the remote session, detached from ctx's
// cancellation but not from its trace. Failures are only logged.
func (c *Controller) deleteSession(ctx context.Context, sessionID string) {
	if c.api == nil {
		return
	}

	ctx = trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()
	if err := c.api.DeleteSession(ctx, sessionID); err != nil {
		logger.WarnContext(ctx, "failed to delete dialog session", "session_id", sessionID, "error", err)
	}
}

// streamTerminated runs with mu held when the open stream ended on its own.
func (c *Controller) streamTerminated(ctx context.Context, sessionID string, err error) {
	if c.assembler.state == assemblerTerminated {
		return
	}

	streamErr := &dialog.StreamError{SessionID: sessionID, Err: err}
	logger.WarnContext(ctx, "dialog stream closed before the dialog ended", "session_id", sessionID, "error", streamErr)
	if c.onStreamClosed != nil {
		c.onStreamClosed(streamErr)
	}
}
