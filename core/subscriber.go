package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-discuss/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// streamHandle is one opened stream. A handle is closed at most once.
type streamHandle struct {
	generation uint64
	sessionID  string
	stream     events.Stream

	closeOnce sync.Once
}

func (h *streamHandle) close() {
	h.closeOnce.Do(func() {
		if err := h.stream.Close(); err != nil {
			logger.Warn("failed to close dialog stream", "session_id", h.sessionID, "error", err)
		}
	})
}

// streamSubscriber owns the single live stream subscription of a controller.
// Every method except wait must be called with mu held; readers take mu
// themselves before dispatching.
type streamSubscriber struct {
	mu        *sync.Mutex
	transport StreamTransport
	table     dispatchTable

	// onTerminated is called with mu held when the current stream ends
	// without being closed first. err is nil on a clean end of stream.
	onTerminated func(ctx context.Context, sessionID string, err error)

	handle     *streamHandle
	generation uint64
	readers    sync.WaitGroup
}

func newStreamSubscriber(mu *sync.Mutex, transport StreamTransport, table dispatchTable) *streamSubscriber {
	return &streamSubscriber{mu: mu, transport: transport, table: table}
}

// open subscribes to the session's stream. The connection is made by the
// reader goroutine, so open does not wait for it.
func (s *streamSubscriber) open(ctx context.Context, sessionID string) error {
	if s.handle != nil {
		return ErrStreamAlreadyOpen
	}
	if s.transport == nil {
		return fmt.Errorf("cannot open stream: no stream transport configured")
	}

	ctx = context.WithoutCancel(ctx)
	stream, err := s.transport.OpenStream(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("error opening stream: %w", err)
	}

	s.generation++
	handle := &streamHandle{generation: s.generation, sessionID: sessionID, stream: stream}
	s.handle = handle

	trace.SpanFromContext(ctx).AddEvent("stream opened", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int64("stream.generation", int64(handle.generation)),
	))

	s.readers.Add(1)
	go func() {
		defer s.readers.Done()

		err := recoverReader(handle, s.read)(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.handle != handle {
			return
		}
		s.close()
		if s.onTerminated != nil {
			s.onTerminated(ctx, sessionID, err)
		}
	}()

	return nil
}

func (s *streamSubscriber) read(ctx context.Context, handle *streamHandle) error {
	for event, err := range handle.stream.Events(ctx) {
		if err != nil {
			return err
		}
		if done := s.deliver(ctx, handle, event); done {
			return nil
		}
	}
	return nil
}

// deliver dispatches event if handle is still the open one. It reports
// whether the reader should stop.
func (s *streamSubscriber) deliver(ctx context.Context, handle *streamHandle, event events.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != handle {
		return true
	}

	s.table.dispatch(ctx, event)
	if event.Kind() == events.KindDialogEnded {
		s.close()
		return true
	}
	return false
}

// close drops the current handle. Events still in flight for it are
// discarded.
func (s *streamSubscriber) close() {
	if s.handle == nil {
		return
	}
	s.handle.close()
	s.handle = nil
}

func (s *streamSubscriber) isOpen() bool {
	return s.handle != nil
}

// wait blocks until every reader goroutine returned. It must be called
// without mu held.
func (s *streamSubscriber) wait() {
	s.readers.Wait()
}
