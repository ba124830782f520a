package executor

import (
	"context"
	"time"

	"stagebox/internal/runtime"
)

// SandboxExecutor runs snippets inside the shared dev-server runtime. Only
// the runtime's small native language set is supported; everything else is
// for the remote backends.
type SandboxExecutor struct {
	manager *runtime.Manager
}

// NewSandboxExecutor wraps the runtime manager as an execution backend.
func NewSandboxExecutor(manager *runtime.Manager) *SandboxExecutor {
	return &SandboxExecutor{manager: manager}
}

func (s *SandboxExecutor) Name() string { return "browser" }

func (s *SandboxExecutor) Supports(language string) bool {
	return runtime.SupportsLanguage(language)
}

// Available checks the isolation capability. Absence is fatal for this
// backend; there is no degraded mode.
func (s *SandboxExecutor) Available(ctx context.Context) error {
	return s.manager.Capable(ctx)
}

func (s *SandboxExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	timeout := defaultRunTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	started := time.Now()
	res, err := s.manager.ExecuteSnippet(ctx, sourceText(req), req.Language, req.Stdin, timeout)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Success:      res.ExitCode == 0,
		Stdout:       res.Stdout,
		Stderr:       res.Stderr,
		ExitCode:     res.ExitCode,
		DurationMs:   time.Since(started).Milliseconds(),
		ExecutorUsed: s.Name(),
	}, nil
}
