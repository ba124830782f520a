package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stagebox/internal/logging"
)

const (
	probeTimeout      = 3 * time.Second
	defaultRunTimeout = 10 * time.Second
)

// preferredVariants pins a concrete runtime variant per language, so the
// pick is deterministic instead of whatever the remote API defaults to.
var preferredVariants = map[string]string{
	"javascript": "node",
	"js":         "node",
	"typescript": "typescript",
	"ts":         "typescript",
	"python":     "python",
	"py":         "python",
}

// pistonRuntime is one entry of the remote capability list.
type pistonRuntime struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
}

type pistonFile struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

type pistonExecutePayload struct {
	Language       string       `json:"language"`
	Version        string       `json:"version"`
	Files          []pistonFile `json:"files"`
	Stdin          string       `json:"stdin,omitempty"`
	Args           []string     `json:"args,omitempty"`
	CompileTimeout int          `json:"compile_timeout,omitempty"`
	RunTimeout     int          `json:"run_timeout,omitempty"`
	CompileMemory  int64        `json:"compile_memory_limit,omitempty"`
	RunMemory      int64        `json:"run_memory_limit,omitempty"`
}

type pistonPhase struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   *int   `json:"code"`
	Signal string `json:"signal"`
}

type pistonExecuteResponse struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Compile  *pistonPhase `json:"compile,omitempty"`
	Run      pistonPhase  `json:"run"`
	Message  string       `json:"message,omitempty"`
}

// RemoteExecutor is a stateless client for the free multi-language
// execution API. The capability list is fetched once per process and the
// preferred runtime variant per language is selected deterministically.
type RemoteExecutor struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger

	mu       sync.Mutex
	runtimes []pistonRuntime
}

// NewRemoteExecutor creates a client for the given API base URL, e.g.
// "https://emkc.org/api/v2/piston".
func NewRemoteExecutor(baseURL string) *RemoteExecutor {
	// No client-level timeout: every request carries its own context
	// deadline, and a transport cap below a caller's run timeout would
	// misreport long runs as unavailability.
	return &RemoteExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		log:     logging.L().With(zap.String("executor", "remote")),
	}
}

func (r *RemoteExecutor) Name() string { return "remote" }

// Supports is optimistic before the capability list is known; resolution
// failures surface at execute time and feed the fallback chain.
func (r *RemoteExecutor) Supports(language string) bool {
	r.mu.Lock()
	cached := r.runtimes
	r.mu.Unlock()
	if cached == nil {
		return true
	}
	_, err := pickRuntime(cached, language)
	return err == nil
}

// Available probes the API by fetching (or reusing) the capability list.
func (r *RemoteExecutor) Available(ctx context.Context) error {
	r.mu.Lock()
	cached := r.runtimes
	r.mu.Unlock()
	if cached != nil {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := r.fetchRuntimes(probeCtx)
	return err
}

// Execute submits the snippet to the remote API. A compile-phase diagnostic
// is classified as failure independently of the run phase.
func (r *RemoteExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	rt, err := r.resolveRuntime(ctx, req.Language)
	if err != nil {
		return Result{}, err
	}

	runTimeout := defaultRunTimeout
	if req.TimeoutMs > 0 {
		runTimeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	payload := pistonExecutePayload{
		Language:       rt.Language,
		Version:        rt.Version,
		Files:          []pistonFile{{Name: snippetFileName(rt.Language), Content: sourceText(req)}},
		Stdin:          req.Stdin,
		CompileTimeout: 10000,
		RunTimeout:     int(runTimeout.Milliseconds()),
	}

	started := time.Now()
	resp, err := r.post(ctx, "/execute", payload, runTimeout+probeTimeout)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Stdout:       resp.Run.Stdout,
		Stderr:       resp.Run.Stderr,
		DurationMs:   time.Since(started).Milliseconds(),
		ExecutorUsed: r.Name(),
	}
	if resp.Run.Code != nil {
		result.ExitCode = *resp.Run.Code
	}

	if compileFailed(resp.Compile) {
		result.Success = false
		result.ExitCode = compileExitCode(resp.Compile)
		result.Stderr = resp.Compile.Stderr
		result.Error = "compilation failed"
		return result, nil
	}

	result.Success = result.ExitCode == 0 && resp.Run.Signal == ""
	if resp.Run.Signal != "" {
		result.Error = "terminated by signal " + resp.Run.Signal
	}
	return result, nil
}

func compileFailed(phase *pistonPhase) bool {
	if phase == nil {
		return false
	}
	if phase.Code != nil && *phase.Code != 0 {
		return true
	}
	return strings.TrimSpace(phase.Stderr) != ""
}

func compileExitCode(phase *pistonPhase) int {
	if phase.Code != nil && *phase.Code != 0 {
		return *phase.Code
	}
	return 1
}

func (r *RemoteExecutor) resolveRuntime(ctx context.Context, language string) (pistonRuntime, error) {
	r.mu.Lock()
	cached := r.runtimes
	r.mu.Unlock()

	if cached == nil {
		fetchCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		var err error
		cached, err = r.fetchRuntimes(fetchCtx)
		if err != nil {
			return pistonRuntime{}, err
		}
	}
	return pickRuntime(cached, language)
}

// fetchRuntimes loads the capability list, caching it for the process
// lifetime on success.
func (r *RemoteExecutor) fetchRuntimes(ctx context.Context) ([]pistonRuntime, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/runtimes", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: runtimes returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var runtimes []pistonRuntime
	if err := json.NewDecoder(resp.Body).Decode(&runtimes); err != nil {
		return nil, fmt.Errorf("%w: invalid runtimes payload: %v", ErrUnavailable, err)
	}

	r.mu.Lock()
	r.runtimes = runtimes
	r.mu.Unlock()
	r.log.Info("remote runtime list cached", zap.Int("count", len(runtimes)))
	return runtimes, nil
}

// pickRuntime resolves a language to a concrete runtime. The preferred
// variant wins; otherwise the first language or alias match in list order.
func pickRuntime(runtimes []pistonRuntime, language string) (pistonRuntime, error) {
	lang := strings.ToLower(strings.TrimSpace(language))
	if preferred, ok := preferredVariants[lang]; ok {
		for _, rt := range runtimes {
			if rt.Language == preferred {
				return rt, nil
			}
		}
	}
	for _, rt := range runtimes {
		if rt.Language == lang {
			return rt, nil
		}
		for _, alias := range rt.Aliases {
			if alias == lang {
				return rt, nil
			}
		}
	}
	return pistonRuntime{}, fmt.Errorf("no remote runtime for language %q", language)
}

func (r *RemoteExecutor) post(ctx context.Context, path string, payload pistonExecutePayload, timeout time.Duration) (*pistonExecuteResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var decoded pistonExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: invalid execute payload: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := decoded.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
	return &decoded, nil
}

func snippetFileName(language string) string {
	switch language {
	case "node", "javascript":
		return "main.js"
	case "typescript":
		return "main.ts"
	case "python":
		return "main.py"
	case "go":
		return "main.go"
	default:
		return "main"
	}
}
