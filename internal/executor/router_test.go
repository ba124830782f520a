package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

// scriptedExecutor fakes one backend for router tests.
type scriptedExecutor struct {
	name      string
	supported map[string]bool
	availErr  error
	result    Result
	execErr   error

	availCalls int32
	execCalls  int32
}

func (s *scriptedExecutor) Name() string { return s.name }

func (s *scriptedExecutor) Supports(language string) bool {
	if s.supported == nil {
		return true
	}
	return s.supported[language]
}

func (s *scriptedExecutor) Available(ctx context.Context) error {
	atomic.AddInt32(&s.availCalls, 1)
	return s.availErr
}

func (s *scriptedExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	atomic.AddInt32(&s.execCalls, 1)
	if s.execErr != nil {
		return Result{}, s.execErr
	}
	res := s.result
	res.ExecutorUsed = s.name
	return res, nil
}

func okExecutor(name string) *scriptedExecutor {
	return &scriptedExecutor{name: name, result: Result{Success: true, Stdout: name + " output", ExitCode: 0}}
}

func TestAutoStopsAtBrowserSuccess(t *testing.T) {
	browser := okExecutor("browser")
	remote := okExecutor("remote")
	fallback := okExecutor("fallback")
	r := NewRouter(browser, remote, fallback)

	res := r.Route(context.Background(), Request{Code: "1", Language: "javascript", Mode: ModeAuto})

	if !res.Success || res.ExecutorUsed != "browser" {
		t.Fatalf("result = %+v, want browser success", res)
	}
	if atomic.LoadInt32(&remote.execCalls) != 0 || atomic.LoadInt32(&fallback.execCalls) != 0 {
		t.Error("later backends were invoked after browser success")
	}
}

func TestAutoSkipsUnsupportedBrowserLanguage(t *testing.T) {
	browser := okExecutor("browser")
	browser.supported = map[string]bool{"javascript": true}
	remote := okExecutor("remote")
	r := NewRouter(browser, remote, nil)

	res := r.Route(context.Background(), Request{Code: "print(1)", Language: "python", Mode: ModeAuto})

	if res.ExecutorUsed != "remote" {
		t.Fatalf("executor = %s, want remote", res.ExecutorUsed)
	}
	if atomic.LoadInt32(&browser.execCalls) != 0 {
		t.Error("browser executed an unsupported language")
	}
}

func TestAutoFallsThroughOnUnavailable(t *testing.T) {
	browser := okExecutor("browser")
	browser.availErr = ErrUnavailable
	remote := okExecutor("remote")
	remote.availErr = ErrUnavailable
	fallback := okExecutor("fallback")
	r := NewRouter(browser, remote, fallback)

	res := r.Route(context.Background(), Request{Code: "1", Language: "javascript", Mode: ModeAuto})

	if res.ExecutorUsed != "fallback" {
		t.Fatalf("executor = %s, want fallback", res.ExecutorUsed)
	}
}

func TestAutoFallsThroughOnExecuteError(t *testing.T) {
	browser := okExecutor("browser")
	browser.execErr = errors.New("runtime crashed")
	remote := okExecutor("remote")
	r := NewRouter(browser, remote, nil)

	res := r.Route(context.Background(), Request{Code: "1", Language: "javascript", Mode: ModeAuto})

	if res.ExecutorUsed != "remote" {
		t.Fatalf("executor = %s, want remote after browser error", res.ExecutorUsed)
	}
}

func TestAutoDoesNotFallThroughOnProgramFailure(t *testing.T) {
	browser := okExecutor("browser")
	browser.result = Result{Success: false, ExitCode: 1, Stderr: "ReferenceError"}
	remote := okExecutor("remote")
	r := NewRouter(browser, remote, nil)

	res := r.Route(context.Background(), Request{Code: "boom()", Language: "javascript", Mode: ModeAuto})

	if res.ExecutorUsed != "browser" {
		t.Fatalf("executor = %s; a failing program is still a completed execution", res.ExecutorUsed)
	}
	if res.Success {
		t.Error("program failure reported as success")
	}
	if atomic.LoadInt32(&remote.execCalls) != 0 {
		t.Error("remote invoked although the sandbox completed the run")
	}
}

func TestAllBackendsExhausted(t *testing.T) {
	browser := okExecutor("browser")
	browser.availErr = ErrUnavailable
	remote := okExecutor("remote")
	remote.availErr = ErrUnavailable
	r := NewRouter(browser, remote, nil)

	res := r.Route(context.Background(), Request{Code: "1", Language: "javascript", Mode: ModeAuto})

	if res.Success {
		t.Fatal("exhausted chain reported success")
	}
	if res.Error == "" {
		t.Fatal("terminal result carries no error message")
	}
	if atomic.LoadInt32(&browser.availCalls) != 1 || atomic.LoadInt32(&remote.availCalls) != 1 {
		t.Error("backends must be tried at most once per request")
	}
}

func TestExplicitModeNeverFallsBack(t *testing.T) {
	browser := okExecutor("browser")
	remote := okExecutor("remote")
	remote.availErr = ErrUnavailable
	fallback := okExecutor("fallback")
	r := NewRouter(browser, remote, fallback)

	res := r.Route(context.Background(), Request{Code: "1", Language: "javascript", Mode: ModeRemote})

	if res.Success {
		t.Fatal("explicit remote mode succeeded despite unavailable backend")
	}
	if res.ExecutorUsed != "remote" {
		t.Errorf("executor = %s, want remote", res.ExecutorUsed)
	}
	if atomic.LoadInt32(&browser.execCalls) != 0 || atomic.LoadInt32(&fallback.execCalls) != 0 {
		t.Error("explicit mode fell back to another backend")
	}
}

func TestExplicitFallbackUnconfigured(t *testing.T) {
	r := NewRouter(okExecutor("browser"), okExecutor("remote"), nil)

	res := r.Route(context.Background(), Request{Code: "1", Language: "javascript", Mode: ModeFallback})

	if res.Success {
		t.Fatal("unconfigured fallback mode reported success")
	}
	if res.Error == "" {
		t.Error("missing error message for unconfigured fallback")
	}
}

func TestDefaultModeIsAuto(t *testing.T) {
	browser := okExecutor("browser")
	r := NewRouter(browser, okExecutor("remote"), nil)

	res := r.Route(context.Background(), Request{Code: "1", Language: "javascript"})

	if res.ExecutorUsed != "browser" {
		t.Errorf("executor = %s, want browser via auto default", res.ExecutorUsed)
	}
}
