package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/koscakluka/ema-discuss/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	eventPrefix   = "event:"
	dataPrefix    = "data:"
	commentPrefix = ":"

	maxFrameSize = 2 * 1024 * 1024
)

var _ events.Stream = (*Stream)(nil)

// OpenStream prepares the event stream of a session. The request is made
// when the stream is iterated, so opening never blocks.
func (c *Client) OpenStream(_ context.Context, sessionID string) (events.Stream, error) {
	if sessionID == "" {
		return nil, errors.New("cannot open stream without a session id")
	}

	return &Stream{
		client:    c.streamClient,
		url:       c.endpoint(sessionPath(sessionID, "stream")),
		sessionID: sessionID,
	}, nil
}

// Stream is one subscription to a session's server-sent events.
type Stream struct {
	client    *http.Client
	url       string
	sessionID string

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func (s *Stream) Events(ctx context.Context) func(func(events.Event, error) bool) {
	return func(yield func(events.Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.cancel = cancel
		s.mu.Unlock()

		ctx, span := tracer.Start(ctx, "dialog event stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.session_id", s.sessionID))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			err = &dialog.TransportError{Op: "stream", Err: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			err = &dialog.TransportError{Op: "stream", StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
			return
		}
		span.AddEvent("stream connected")

		frames := 0
		var (
			eventName string
			dataLines []string
		)

		// flush dispatches the buffered frame. It reports false when the
		// consumer stopped or the frame could not be decoded.
		flush := func() bool {
			defer func() {
				eventName = ""
				dataLines = nil
			}()
			if eventName == "" && len(dataLines) == 0 {
				return true
			}

			event, err := events.Decode(eventName, []byte(strings.Join(dataLines, "\n")))
			if errors.Is(err, events.ErrUnknownKind) {
				logger.DebugContext(ctx, "skipping unknown stream event", "event", eventName, "session_id", s.sessionID)
				return true
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield(nil, err)
				return false
			}

			frames++
			streamFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("event", string(event.Kind()))))
			return yield(event, nil)
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")

			switch {
			case line == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(line, commentPrefix):
			case strings.HasPrefix(line, eventPrefix):
				eventName = strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
			case strings.HasPrefix(line, dataPrefix):
				dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, dataPrefix), " "))
			}
		}
		if ctx.Err() != nil {
			return
		}
		if !flush() {
			return
		}
		span.SetAttributes(attribute.Int("response.frames", frames))

		if err := scanner.Err(); err != nil {
			err = &dialog.TransportError{Op: "stream", Err: fmt.Errorf("error reading streamed response: %w", err)}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}
	}
}

// Close ends the subscription immediately. It is safe to call more than
// once and before the stream was iterated.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
