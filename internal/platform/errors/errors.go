package apperrors

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrNoActiveSession     = errors.New("no active session")
	ErrActiveSessionExists = errors.New("active session already exists")
	ErrIllegalTransition   = errors.New("illegal sync state transition")
	ErrNotBound            = errors.New("no subject bound")

	// ErrSubjectNotFound is a configuration problem, not a transient
	// failure: the remote service does not know the bound subject. It is
	// surfaced to callers and never retried automatically.
	ErrSubjectNotFound = errors.New("subject not found")

	ErrAgentNotRunning  = errors.New("agent is not running")
	ErrAgentStartFailed = errors.New("agent failed to start")
)
