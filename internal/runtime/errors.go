package runtime

import "errors"

var (
	// ErrIsolationUnavailable means the container isolation capability is
	// missing. Fatal: there is no fallback path for the isolation guarantee.
	ErrIsolationUnavailable = errors.New("container isolation unavailable")

	// ErrDuplicateBoot means a second physical boot was attempted while a
	// runtime already exists. Recovered internally by adopting the existing
	// runtime; surfaced only when adoption fails too.
	ErrDuplicateBoot = errors.New("runtime already booted")

	// ErrMountFailure means the virtual file tree could not be written into
	// the runtime workspace.
	ErrMountFailure = errors.New("workspace mount failed")

	// ErrInstallTimeout means the dependency install exceeded its bounded
	// wait. Non-fatal: the session proceeds to the start phase anyway.
	ErrInstallTimeout = errors.New("dependency install timed out")

	// ErrStartFailure means the dev server never reported readiness. Fatal
	// for the session, not for the shared runtime.
	ErrStartFailure = errors.New("dev server failed to start")
)
