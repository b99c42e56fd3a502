package pppos

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive indicates Connect is called while connecting or connected.
	ErrAlreadyActive = errors.New("connection already active")
	// ErrTeardownPending indicates Connect is called on a lost connection
	// which still holds an engine handle.
	ErrTeardownPending = errors.New("lost connection not torn down")
	// ErrNotConnected indicates Disconnect is called while disconnected.
	ErrNotConnected = errors.New("already disconnected")
	// ErrNoEngine indicates no engine handle is held.
	ErrNoEngine = errors.New("no PPP interface")
	// ErrNoTransport indicates the bridge has no serial transport.
	ErrNoTransport = errors.New("no serial transport")
)

// Setup steps reported by SetupError.
const (
	StepInit       = "init"
	StepCreate     = "create"
	StepSetDefault = "set-default"
	StepConnect    = "connect"
)

// SetupError is returned by Connect when the connection can't be set up.
type SetupError struct {
	Step string
	Err  error
}

// Error implements error.
func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *SetupError) Unwrap() error {
	return e.Err
}
