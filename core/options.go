package controller

import (
	"context"

	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/koscakluka/ema-discuss/core/events"
)

type ControllerOption func(*Controller)

// SessionAPI is the request/response side of the dialog backend.
type SessionAPI interface {
	StartSession(ctx context.Context, cfg dialog.Config) (string, error)
	Intervene(ctx context.Context, sessionID string, message string) (dialog.InterventionResult, error)
	TogglePause(ctx context.Context, sessionID string) (bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
	SessionState(ctx context.Context, sessionID string) (dialog.State, error)
}

// StreamTransport opens event streams. OpenStream must not block on the
// network; the connection is made when the stream is iterated.
type StreamTransport interface {
	OpenStream(ctx context.Context, sessionID string) (events.Stream, error)
}

// Backend is implemented by clients serving both sides, such as
// [github.com/koscakluka/ema-discuss/core/api.Client].
type Backend interface {
	SessionAPI
	StreamTransport
}

func WithBackend(backend Backend) ControllerOption {
	return func(c *Controller) {
		c.api = backend
		c.transport = backend
	}
}

func WithSessionAPI(api SessionAPI) ControllerOption {
	return func(c *Controller) { c.api = api }
}

func WithStreamTransport(transport StreamTransport) ControllerOption {
	return func(c *Controller) { c.transport = transport }
}

// WithPresentationSink sets where render instructions go. More than one sink
// is wrapped in a [MultiSink].
func WithPresentationSink(sinks ...PresentationSink) ControllerOption {
	return func(c *Controller) {
		switch len(sinks) {
		case 0:
			c.sink = noopSink{}
		case 1:
			c.sink = sinks[0]
		default:
			c.sink = MultiSink(sinks)
		}
	}
}

// WithBuilder replaces the builder used to validate configs passed to
// [Controller.Start].
func WithBuilder(builder *dialog.Builder) ControllerOption {
	return func(c *Controller) { c.builder = builder }
}

// WithResetCallback registers a callback run by [Controller.Reset] after the
// session was torn down. Hosts use it to return to configuration.
func WithResetCallback(callback func()) ControllerOption {
	return func(c *Controller) { c.onReset = callback }
}

// WithStreamClosedCallback registers a callback for streams that ended
// before the dialog did. It receives a [*dialog.StreamError] and runs with
// the controller lock held.
func WithStreamClosedCallback(callback func(err error)) ControllerOption {
	return func(c *Controller) { c.onStreamClosed = callback }
}
