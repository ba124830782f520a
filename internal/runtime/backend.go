package runtime

import (
	"context"
	"time"
)

// ExecResult is the deterministic output of one command run in the runtime.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Backend is one concrete runtime implementation the state machine drives.
// The production backend is Docker; tests substitute a fake.
type Backend interface {
	Name() string

	// Probe checks the isolation capability. An error means the capability
	// is absent and boot must not be attempted.
	Probe(ctx context.Context) error

	// Acquire boots the runtime, or adopts an already-running one when a
	// duplicate boot is detected. recovered reports the adoption case.
	Acquire(ctx context.Context) (id string, recovered bool, err error)

	// WriteFiles mounts a sanitized {path: content} map into the workspace.
	WriteFiles(ctx context.Context, files map[string]string) error

	// Exec runs a command to completion inside the runtime workspace.
	Exec(ctx context.Context, cmd []string, timeout time.Duration) (ExecResult, error)

	// StartDev launches the dev server command and streams its combined
	// output line by line. The channel closes when the process exits.
	StartDev(ctx context.Context, cmd []string) (<-chan string, error)

	// StopDev terminates a previously launched dev server so a remount can
	// relaunch on the published port. A no-op when nothing is running.
	StopDev(ctx context.Context) error

	// PreviewAddr is the host:port the dev server is published on.
	PreviewAddr() string
}
