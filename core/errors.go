package controller

import "errors"

var (
	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("no active dialog session")
	// ErrSessionActive is returned by Start while another session is active
	// or being started.
	ErrSessionActive = errors.New("a dialog session is already active")
	// ErrStreamAlreadyOpen reports an attempt to open a second stream while
	// the previous one was not closed.
	ErrStreamAlreadyOpen = errors.New("stream already open")
	// ErrControllerClosed is returned by Start after Close.
	ErrControllerClosed = errors.New("controller closed")
	// ErrStartAborted is returned by Start when Reset or Close ran while the
	// session was being created. The created session is deleted again.
	ErrStartAborted = errors.New("dialog start aborted")
)
