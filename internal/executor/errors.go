package executor

import "errors"

var (
	// ErrUnavailable means a backend's health probe failed.
	ErrUnavailable = errors.New("executor unavailable")

	// ErrTimeout means a backend did not answer within its deadline.
	ErrTimeout = errors.New("executor timed out")

	// ErrAllBackendsExhausted is the terminal auto-mode condition. It is
	// carried inside the Result, never returned as a Go error.
	ErrAllBackendsExhausted = errors.New("all execution backends exhausted")
)
