// Package executor routes one-off code snippets to execution backends: the
// in-process runtime sandbox, a free remote execution API, and a privately
// hosted fallback.
package executor

import "context"

// Mode selects an execution backend, or automatic failover.
type Mode string

const (
	ModeBrowser  Mode = "browser"
	ModeRemote   Mode = "remote"
	ModeFallback Mode = "fallback"
	ModeAuto     Mode = "auto"
)

// Request is a single-use snippet execution request.
type Request struct {
	Code      string `json:"code" binding:"required"`
	Language  string `json:"language" binding:"required"`
	Mode      Mode   `json:"mode"`
	Stdin     string `json:"stdin,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
	TestCode  string `json:"test_code,omitempty"`
}

// Result is always produced, even on total failure. Nothing escapes the
// router as a Go error or panic.
type Result struct {
	Success      bool   `json:"success"`
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	ExitCode     int    `json:"exit_code"`
	DurationMs   int64  `json:"duration_ms"`
	ExecutorUsed string `json:"executor_used"`
	MemoryUsed   int64  `json:"memory_used,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Executor is one execution backend.
type Executor interface {
	Name() string

	// Supports reports whether the backend can run the language at all.
	Supports(language string) bool

	// Available is a lightweight health probe with a short timeout.
	Available(ctx context.Context) error

	// Execute runs the snippet. A returned error means the backend itself
	// failed (unreachable, timed out); a Result with Success=false means
	// the code ran and failed.
	Execute(ctx context.Context, req Request) (Result, error)
}

// sourceText combines the snippet with its optional test harness.
func sourceText(req Request) string {
	if req.TestCode == "" {
		return req.Code
	}
	return req.Code + "\n" + req.TestCode
}
