package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn is returned when the interpreter could not be launched.
	ErrSpawn = errors.New("interpreter spawn failed")

	// ErrUnexpectedExit marks an interpreter exit nobody asked for.
	ErrUnexpectedExit = errors.New("interpreter exited unexpectedly")

	// ErrUserCode marks an exception raised by the evaluated code.
	ErrUserCode = errors.New("user code error")

	// ErrCommunication marks malformed or unexpected interpreter output.
	ErrCommunication = errors.New("interpreter communication error")

	// ErrConfiguration marks an invalid settings value.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotRunning is returned when a request is sent to a stopped interpreter.
	ErrNotRunning = errors.New("interpreter not running")

	// ErrAlreadyRunning is returned by Start on a session that is already running.
	ErrAlreadyRunning = errors.New("session already running")

	// ErrNoActiveEditor is returned by Start when there is no document to track.
	ErrNoActiveEditor = errors.New("no active editor")

	// ErrSessionClosed is returned when a stopped session is used again.
	ErrSessionClosed = errors.New("session closed")

	// ErrEmptyBlock is returned when block mode resolves to no code.
	ErrEmptyBlock = errors.New("no code to evaluate at cursor")

	// ErrCacheMiss is returned by caches for absent or expired keys.
	ErrCacheMiss = errors.New("cache miss")
)

// ProcessError describes a failed interaction with the interpreter process.
type ProcessError struct {
	// Op is the operation that failed ("start", "write", "version").
	Op string
	// Kind is one of the sentinel errors above.
	Kind error
	Err  error
}

func (e *ProcessError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Is matches the error's Kind so errors.Is(err, ErrSpawn) works.
func (e *ProcessError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}
