package controller

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

type readerRun func(context.Context) error

// recoverReader wraps the reader of one stream handle. A panic while reading
// or dispatching becomes an error naming the session and generation.
func recoverReader(handle *streamHandle, read func(context.Context, *streamHandle) error) readerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("stream reader for session %s (generation %d) panicked: %v", handle.sessionID, handle.generation, recovered)
				trace.SpanFromContext(ctx).RecordError(err)
			}
		}()

		if err = read(ctx, handle); err != nil {
			return fmt.Errorf("stream reader for session %s failed: %w", handle.sessionID, err)
		}

		return nil
	}
}
