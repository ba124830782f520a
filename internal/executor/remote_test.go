package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func newPistonServer(t *testing.T, runtimesHits *int32, execute func(pistonExecutePayload) pistonExecuteResponse) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/runtimes", func(w http.ResponseWriter, r *http.Request) {
		if runtimesHits != nil {
			atomic.AddInt32(runtimesHits, 1)
		}
		json.NewEncoder(w).Encode([]pistonRuntime{
			{Language: "node", Version: "20.11.1", Aliases: []string{"javascript", "js"}},
			{Language: "deno", Version: "1.40.0", Aliases: []string{"javascript"}},
			{Language: "python", Version: "3.12.0", Aliases: []string{"py"}},
			{Language: "typescript", Version: "5.3.3", Aliases: []string{"ts"}},
		})
	})
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		var payload pistonExecutePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(execute(payload))
	})
	return httptest.NewServer(mux)
}

func TestRemoteExecuteSuccess(t *testing.T) {
	var hits int32
	srv := newPistonServer(t, &hits, func(p pistonExecutePayload) pistonExecuteResponse {
		if p.Language != "python" {
			t.Errorf("resolved language = %s, want python", p.Language)
		}
		return pistonExecuteResponse{
			Run: pistonPhase{Stdout: "hi\n", Code: intPtr(0)},
		}
	})
	defer srv.Close()

	r := NewRemoteExecutor(srv.URL)
	res, err := r.Execute(context.Background(), Request{Code: "print('hi')", Language: "python"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Errorf("success = false: %+v", res)
	}
	if res.Stdout != "hi\n" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "hi\n")
	}
	if res.ExecutorUsed != "remote" {
		t.Errorf("executor_used = %s", res.ExecutorUsed)
	}
}

func TestRemoteRuntimeListCachedOnce(t *testing.T) {
	var hits int32
	srv := newPistonServer(t, &hits, func(p pistonExecutePayload) pistonExecuteResponse {
		return pistonExecuteResponse{Run: pistonPhase{Code: intPtr(0)}}
	})
	defer srv.Close()

	r := NewRemoteExecutor(srv.URL)
	for i := 0; i < 3; i++ {
		if err := r.Available(context.Background()); err != nil {
			t.Fatalf("Available: %v", err)
		}
		if _, err := r.Execute(context.Background(), Request{Code: "1", Language: "js"}); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("runtimes endpoint hit %d times, want exactly 1", got)
	}
}

func TestRemotePreferredVariantSelection(t *testing.T) {
	srv := newPistonServer(t, nil, func(p pistonExecutePayload) pistonExecuteResponse {
		return pistonExecuteResponse{Run: pistonPhase{Code: intPtr(0)}}
	})
	defer srv.Close()

	r := NewRemoteExecutor(srv.URL)
	runtimes, err := r.fetchRuntimes(context.Background())
	if err != nil {
		t.Fatalf("fetchRuntimes: %v", err)
	}

	// Both node and deno alias "javascript"; the preferred variant wins.
	rt, err := pickRuntime(runtimes, "javascript")
	if err != nil {
		t.Fatalf("pickRuntime: %v", err)
	}
	if rt.Language != "node" {
		t.Errorf("javascript resolved to %s, want node", rt.Language)
	}

	rt, err = pickRuntime(runtimes, "py")
	if err != nil {
		t.Fatalf("pickRuntime: %v", err)
	}
	if rt.Language != "python" {
		t.Errorf("py resolved to %s, want python", rt.Language)
	}

	if _, err := pickRuntime(runtimes, "cobol"); err == nil {
		t.Error("expected resolution failure for unknown language")
	}
}

func TestRemoteCompileFailureIsFailure(t *testing.T) {
	srv := newPistonServer(t, nil, func(p pistonExecutePayload) pistonExecuteResponse {
		return pistonExecuteResponse{
			Compile: &pistonPhase{Stderr: "main.ts(1,1): error TS1005", Code: intPtr(1)},
			Run:     pistonPhase{Stdout: "partial output", Code: intPtr(0)},
		}
	})
	defer srv.Close()

	r := NewRemoteExecutor(srv.URL)
	res, err := r.Execute(context.Background(), Request{Code: "const", Language: "typescript"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Error("compile diagnostics must classify as failure regardless of run phase")
	}
	if res.Stderr == "" {
		t.Error("compiler diagnostics missing from stderr")
	}
}

func TestRemoteRunTimeoutClassified(t *testing.T) {
	var hits int32
	slow := newPistonServer(t, &hits, func(p pistonExecutePayload) pistonExecuteResponse {
		time.Sleep(500 * time.Millisecond)
		return pistonExecuteResponse{Run: pistonPhase{Code: intPtr(0)}}
	})
	defer slow.Close()

	r := NewRemoteExecutor(slow.URL)

	// The context deadline is the only cap; a transport-level timeout would
	// fire first on long runs and misreport them as unavailability.
	if r.client.Timeout != 0 {
		t.Errorf("client timeout = %s, want none", r.client.Timeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.Execute(ctx, Request{Code: "1", Language: "python"})
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Errorf("timeout misclassified as unavailability: %v", err)
	}
}

func TestRemoteUnavailable(t *testing.T) {
	r := NewRemoteExecutor("http://127.0.0.1:1")
	if err := r.Available(context.Background()); err == nil {
		t.Fatal("expected probe failure against closed port")
	}
}

func TestRemoteTestCodeAppended(t *testing.T) {
	srv := newPistonServer(t, nil, func(p pistonExecutePayload) pistonExecuteResponse {
		if len(p.Files) != 1 || p.Files[0].Content != "add(1,2)\nassert add(1,2) == 3" {
			return pistonExecuteResponse{Run: pistonPhase{Stderr: "wrong source", Code: intPtr(1)}}
		}
		return pistonExecuteResponse{Run: pistonPhase{Code: intPtr(0)}}
	})
	defer srv.Close()

	r := NewRemoteExecutor(srv.URL)
	res, err := r.Execute(context.Background(), Request{
		Code:     "add(1,2)",
		TestCode: "assert add(1,2) == 3",
		Language: "python",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Errorf("test code was not appended to the snippet: %+v", res)
	}
}

func TestFallbackHealthProbe(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer healthy.Close()

	f := NewFallbackExecutor(healthy.URL)
	if f == nil {
		t.Fatal("configured fallback returned nil")
	}
	if err := f.Available(context.Background()); err != nil {
		t.Errorf("Available: %v", err)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	if err := NewFallbackExecutor(broken.URL).Available(context.Background()); err == nil {
		t.Error("expected probe failure for unhealthy host")
	}
}

func TestFallbackNotConfigured(t *testing.T) {
	if f := NewFallbackExecutor(""); f != nil {
		t.Error("empty URL should yield a nil fallback executor")
	}
	if f := NewFallbackExecutor("   "); f != nil {
		t.Error("blank URL should yield a nil fallback executor")
	}
}
