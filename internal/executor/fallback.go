package executor

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"stagebox/internal/logging"
)

// FallbackExecutor is the last-resort client for the privately hosted
// execution host. Same wire contract as the remote executor, probed via a
// dedicated health endpoint.
type FallbackExecutor struct {
	baseURL string
	client  *http.Client
	inner   *RemoteExecutor
	log     *zap.Logger
}

// NewFallbackExecutor creates a client for the private host. An empty URL
// means the fallback is not configured; callers get a nil executor.
func NewFallbackExecutor(baseURL string) *FallbackExecutor {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	return &FallbackExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: probeTimeout},
		inner:   NewRemoteExecutor(baseURL),
		log:     logging.L().With(zap.String("executor", "fallback")),
	}
}

func (f *FallbackExecutor) Name() string { return "fallback" }

func (f *FallbackExecutor) Supports(language string) bool {
	return f.inner.Supports(language)
}

// Available probes the host's health endpoint with a short timeout.
func (f *FallbackExecutor) Available(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, f.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health returned status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (f *FallbackExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	result, err := f.inner.Execute(ctx, req)
	if err != nil {
		return Result{}, err
	}
	result.ExecutorUsed = f.Name()
	return result, nil
}
