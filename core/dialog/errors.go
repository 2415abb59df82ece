package dialog

import (
	"fmt"
)

// ValidationError reports a configuration or request the user has to fix.
// Operations failing with it leave all state untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// TransportError reports a failed network round trip. Op names the remote
// call ("start", "intervene", "pause", "delete", "state", "stream").
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StreamError reports that a session's event stream closed before the
// dialog_end event was seen.
type StreamError struct {
	SessionID string
	Err       error
}

func (e *StreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stream for session %s closed before dialog end", e.SessionID)
	}
	return fmt.Sprintf("stream for session %s closed before dialog end: %v", e.SessionID, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// ProtocolViolation reports an event that arrived out of order. It is only
// ever logged.
type ProtocolViolation struct {
	Kind   string
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation on %q event: %s", e.Kind, e.Reason)
}
