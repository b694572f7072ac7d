package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned when starting a session while another one
	// has not been torn down.
	ErrSessionActive = errors.New("session: another session is active")

	// ErrNoActiveSession is returned by Manager.Advance without a session.
	ErrNoActiveSession = errors.New("session: no active session")

	// ErrClosed is returned when advancing a session that was torn down.
	ErrClosed = errors.New("session: closed")

	// ErrNotLocal is returned when Advance receives input for a handle this
	// peer does not own.
	ErrNotLocal = errors.New("session: handle is not local")
)

// ConnectionError is returned by StartOnline when the peer set cannot be
// established. No session exists afterwards.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("session: connection failed: %v", e.Err)
	}
	return fmt.Sprintf("session: connection to %s failed: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// InvalidConfigurationError is returned when a session cannot be built from
// the given configuration. Retrying with valid values is always possible.
type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("session: invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &InvalidConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
