package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagebox/internal/executor"
	"stagebox/internal/runtime"
	"stagebox/internal/session"
	"stagebox/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubExecutor is a scriptable execution backend.
type stubExecutor struct {
	name      string
	supports  bool
	availErr  error
	result    executor.Result
	execErr   error
	execCalls int
}

func (s *stubExecutor) Name() string                    { return s.name }
func (s *stubExecutor) Supports(string) bool            { return s.supports }
func (s *stubExecutor) Available(context.Context) error { return s.availErr }
func (s *stubExecutor) Execute(context.Context, executor.Request) (executor.Result, error) {
	s.execCalls++
	return s.result, s.execErr
}

// stubBackend drives the preview pipeline to ready without Docker.
type stubBackend struct{}

func (stubBackend) Name() string                { return "stub" }
func (stubBackend) Probe(context.Context) error { return nil }
func (stubBackend) Acquire(context.Context) (string, bool, error) {
	return "stub-runtime", false, nil
}
func (stubBackend) WriteFiles(context.Context, map[string]string) error { return nil }
func (stubBackend) Exec(context.Context, []string, time.Duration) (runtime.ExecResult, error) {
	return runtime.ExecResult{ExitCode: 0}, nil
}
func (stubBackend) StartDev(context.Context, []string) (<-chan string, error) {
	ch := make(chan string, 1)
	ch <- "Local:   http://localhost:5173/"
	close(ch)
	return ch, nil
}
func (stubBackend) StopDev(context.Context) error { return nil }
func (stubBackend) PreviewAddr() string           { return "127.0.0.1:5173" }

func newTestRouter(t *testing.T, browser *stubExecutor) (*gin.Engine, *Handler) {
	t.Helper()
	runtime.ResetHandle()

	remote := &stubExecutor{name: "remote", supports: true, result: executor.Result{
		Success: true, ExecutorUsed: "remote", Stdout: "remote ran\n",
	}}
	if browser == nil {
		browser = &stubExecutor{name: "browser", supports: false}
	}
	execRouter := executor.NewRouter(browser, remote, nil)

	manager := runtime.NewManager(stubBackend{},
		runtime.WithInstallTimeout(time.Second),
		runtime.WithStartTimeout(5*time.Second))
	controller := session.NewController(manager)

	st, err := store.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	h := NewHandler(execRouter, controller, st)
	engine := gin.New()
	h.RegisterRoutes(engine.Group("/api/v1"))
	return engine, h
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, StandardResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp StandardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestExecuteRoutesToBackend(t *testing.T) {
	engine, _ := newTestRouter(t, nil)

	w, resp := doJSON(t, engine, "POST", "/api/v1/execute", map[string]interface{}{
		"code":     "print('hi')",
		"language": "python",
		"mode":     "remote",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	data, _ := json.Marshal(resp.Data)
	var result executor.Result
	require.NoError(t, json.Unmarshal(data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, "remote", result.ExecutorUsed)
	assert.Equal(t, "remote ran\n", result.Stdout)
}

func TestExecuteFailureStillReturns200(t *testing.T) {
	browser := &stubExecutor{name: "browser", supports: true, execErr: executor.ErrUnavailable}
	engine, _ := newTestRouter(t, browser)

	w, resp := doJSON(t, engine, "POST", "/api/v1/execute", map[string]interface{}{
		"code":     "1+1",
		"language": "javascript",
		"mode":     "browser",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	data, _ := json.Marshal(resp.Data)
	var result executor.Result
	require.NoError(t, json.Unmarshal(data, &result))
	assert.False(t, result.Success)
	assert.Equal(t, -1, result.ExitCode)
}

func TestExecuteRejectsInvalidBody(t *testing.T) {
	engine, _ := newTestRouter(t, nil)

	w, resp := doJSON(t, engine, "POST", "/api/v1/execute", map[string]interface{}{
		"language": "python",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "INVALID_REQUEST", resp.Code)
}

func TestExecutePersistsHistory(t *testing.T) {
	engine, h := newTestRouter(t, nil)

	for i := 0; i < 3; i++ {
		doJSON(t, engine, "POST", "/api/v1/execute", map[string]interface{}{
			"code":     "print('hi')",
			"language": "python",
			"mode":     "remote",
		})
	}

	records, err := h.Store.Recent(10)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	w, resp := doJSON(t, engine, "GET", "/api/v1/executions?limit=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	data, _ := json.Marshal(resp.Data)
	var listed []store.ExecutionRecord
	require.NoError(t, json.Unmarshal(data, &listed))
	assert.Len(t, listed, 2)
}

func TestLanguagesMatrix(t *testing.T) {
	engine, _ := newTestRouter(t, nil)

	w, resp := doJSON(t, engine, "GET", "/api/v1/languages", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, resp.Success)

	data, _ := json.Marshal(resp.Data)
	var langs []struct {
		Language string   `json:"language"`
		Modes    []string `json:"modes"`
	}
	require.NoError(t, json.Unmarshal(data, &langs))

	byName := map[string][]string{}
	for _, l := range langs {
		byName[l.Language] = l.Modes
	}
	assert.Contains(t, byName["javascript"], "browser")
	assert.Contains(t, byName["python"], "remote")
	assert.NotContains(t, byName["python"], "browser")
}

func TestPreviewLifecycle(t *testing.T) {
	engine, h := newTestRouter(t, nil)

	w, resp := doJSON(t, engine, "POST", "/api/v1/preview", map[string]interface{}{
		"files": map[string]string{
			"src/App.jsx": "export default function App() { return null }",
		},
	})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, resp.Success)

	require.Eventually(t, func() bool {
		return h.Controller.Status().Status == runtime.StatusReady
	}, 5*time.Second, 20*time.Millisecond)

	w, resp = doJSON(t, engine, "GET", "/api/v1/preview/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data, _ := json.Marshal(resp.Data)
	var snap runtime.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, runtime.StatusReady, snap.Status)
	assert.Equal(t, "http://127.0.0.1:5173", snap.PreviewURL)
}

func TestPreviewRejectsEmptyFileMap(t *testing.T) {
	engine, _ := newTestRouter(t, nil)

	w, resp := doJSON(t, engine, "POST", "/api/v1/preview", map[string]interface{}{
		"files": map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
}

func TestPreviewRefreshClearsFingerprint(t *testing.T) {
	engine, h := newTestRouter(t, nil)

	doJSON(t, engine, "POST", "/api/v1/preview", map[string]interface{}{
		"files": map[string]string{"src/App.jsx": "export default () => null"},
	})
	require.Eventually(t, func() bool {
		return h.Controller.Status().Status == runtime.StatusReady
	}, 5*time.Second, 20*time.Millisecond)
	require.NotEmpty(t, h.Controller.Status().Fingerprint)

	w, resp := doJSON(t, engine, "POST", "/api/v1/preview/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Empty(t, h.Controller.Status().Fingerprint)
}
