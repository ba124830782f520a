package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stagebox/internal/logging"
	"stagebox/internal/metrics"
)

// Router chooses among the execution backends. Explicit modes map 1:1 to
// one backend and never fall back; auto mode walks the chain in priority
// order, trying each backend at most once. Route always returns a Result.
type Router struct {
	browser  Executor
	remote   Executor
	fallback Executor
	log      *zap.Logger
}

// NewRouter wires the fallback chain. browser and remote are required;
// fallback may be nil when no private host is configured.
func NewRouter(browser, remote, fallback Executor) *Router {
	return &Router{
		browser:  browser,
		remote:   remote,
		fallback: fallback,
		log:      logging.L().With(zap.String("component", "router")),
	}
}

// Route executes the request. Errors from backends never escape; every
// outcome is a Result.
func (r *Router) Route(ctx context.Context, req Request) Result {
	if req.Mode == "" {
		req.Mode = ModeAuto
	}

	started := time.Now()
	result := r.route(ctx, req)
	status := "failed"
	if result.Success {
		status = "completed"
	}
	metrics.Get().RecordExecution(req.Language, result.ExecutorUsed, status, time.Since(started))
	return result
}

func (r *Router) route(ctx context.Context, req Request) Result {
	switch req.Mode {
	case ModeBrowser:
		return r.runExplicit(ctx, r.browser, req)
	case ModeRemote:
		return r.runExplicit(ctx, r.remote, req)
	case ModeFallback:
		if r.fallback == nil {
			return failure("fallback", "fallback executor is not configured")
		}
		return r.runExplicit(ctx, r.fallback, req)
	case ModeAuto:
		return r.runAuto(ctx, req)
	default:
		return failure("none", "unknown execution mode: "+string(req.Mode))
	}
}

// runExplicit runs one backend with no fallback on failure.
func (r *Router) runExplicit(ctx context.Context, exec Executor, req Request) Result {
	if !exec.Supports(req.Language) {
		return failure(exec.Name(), "language "+req.Language+" is not supported by the "+exec.Name()+" executor")
	}
	if err := exec.Available(ctx); err != nil {
		metrics.Get().SetBackendAvailable(exec.Name(), false)
		return failure(exec.Name(), err.Error())
	}
	metrics.Get().SetBackendAvailable(exec.Name(), true)
	result, err := exec.Execute(ctx, req)
	if err != nil {
		r.log.Warn("explicit execution failed",
			zap.String("backend", exec.Name()),
			zap.String("language", req.Language),
			zap.Error(err))
		return failure(exec.Name(), err.Error())
	}
	return result
}

// runAuto walks the chain: browser sandbox when the language is in its
// native set and the capability holds, then the remote API when healthy,
// then the fallback host when configured and healthy.
func (r *Router) runAuto(ctx context.Context, req Request) Result {
	chain := []Executor{r.browser, r.remote}
	if r.fallback != nil {
		chain = append(chain, r.fallback)
	}

	var lastErr string
	for _, exec := range chain {
		if exec == nil || !exec.Supports(req.Language) {
			continue
		}
		if err := exec.Available(ctx); err != nil {
			metrics.Get().SetBackendAvailable(exec.Name(), false)
			r.log.Debug("backend unavailable, trying next",
				zap.String("backend", exec.Name()), zap.Error(err))
			lastErr = err.Error()
			continue
		}
		metrics.Get().SetBackendAvailable(exec.Name(), true)
		result, err := exec.Execute(ctx, req)
		if err != nil {
			r.log.Warn("backend execution failed, trying next",
				zap.String("backend", exec.Name()),
				zap.String("language", req.Language),
				zap.Error(err))
			lastErr = err.Error()
			continue
		}
		return result
	}

	msg := ErrAllBackendsExhausted.Error()
	if lastErr != "" {
		msg += ": " + lastErr
	}
	r.log.Error("all execution backends exhausted", zap.String("language", req.Language))
	return failure("none", msg)
}

func failure(executorUsed, msg string) Result {
	return Result{
		Success:      false,
		ExitCode:     -1,
		ExecutorUsed: executorUsed,
		Error:        msg,
	}
}
