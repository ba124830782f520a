package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"stagebox/internal/logging"
)

// Handle is the process-wide runtime singleton. It is created at most once
// per process lifetime, stored outside any manager instance so it survives
// component re-creation, and never torn down.
type Handle struct {
	Backend   Backend
	ID        string
	Recovered bool
}

// boot is one memoized boot attempt. Concurrent callers wait on done
// instead of issuing a second physical boot.
type boot struct {
	done   chan struct{}
	handle *Handle
	err    error
}

var (
	handleMu sync.Mutex
	current  *Handle
	inflight *boot
)

// AcquireHandle returns the shared runtime handle, booting it on first use.
// The first caller performs the boot; all concurrent and subsequent callers
// share the same outstanding operation. A failed boot is not memoized, so a
// later call may retry once the underlying condition clears.
func AcquireHandle(ctx context.Context, backend Backend) (*Handle, error) {
	handleMu.Lock()
	if current != nil {
		h := current
		handleMu.Unlock()
		return h, nil
	}
	if inflight != nil {
		b := inflight
		handleMu.Unlock()
		select {
		case <-b.done:
			return b.handle, b.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b := &boot{done: make(chan struct{})}
	inflight = b
	handleMu.Unlock()

	b.handle, b.err = performBoot(ctx, backend)

	handleMu.Lock()
	if b.err == nil {
		current = b.handle
	}
	inflight = nil
	handleMu.Unlock()

	close(b.done)
	return b.handle, b.err
}

func performBoot(ctx context.Context, backend Backend) (*Handle, error) {
	if err := backend.Probe(ctx); err != nil {
		return nil, err
	}

	id, recovered, err := backend.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if recovered {
		logging.L().Warn("recovered existing runtime after duplicate boot attempt",
			zap.String("runtime_id", shortID(id)))
	}
	return &Handle{Backend: backend, ID: id, Recovered: recovered}, nil
}

// CurrentHandle returns the booted handle, or nil when no boot has happened.
func CurrentHandle() *Handle {
	handleMu.Lock()
	defer handleMu.Unlock()
	return current
}

// ResetHandle clears the singleton. Test seam only; production code has no
// teardown path for the shared runtime.
func ResetHandle() {
	handleMu.Lock()
	defer handleMu.Unlock()
	current = nil
	inflight = nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
