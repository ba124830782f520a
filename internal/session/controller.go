// Package session is the UI-facing façade over the preview runtime: it
// accepts file maps, exposes session status, and streams lifecycle events.
package session

import (
	"context"

	"go.uber.org/zap"

	"stagebox/internal/logging"
	"stagebox/internal/runtime"
)

// Controller translates UI requests into runtime state machine calls and
// internal events into the externally observable session lifecycle.
type Controller struct {
	manager *runtime.Manager
	log     *zap.Logger
}

// NewController wraps a runtime manager.
func NewController(manager *runtime.Manager) *Controller {
	return &Controller{
		manager: manager,
		log:     logging.L().With(zap.String("component", "session")),
	}
}

// Apply delivers a file map to the runtime. The pipeline runs in the
// background; the returned snapshot reflects the state at submission time.
// A file map whose fingerprint matches the mounted one is a no-op.
func (c *Controller) Apply(files map[string]string) runtime.Snapshot {
	go func() {
		if err := c.manager.Preview(context.Background(), files); err != nil {
			c.log.Warn("preview pipeline failed", zap.Error(err))
		}
	}()
	return c.manager.Session().Snapshot()
}

// Status returns the current session snapshot.
func (c *Controller) Status() runtime.Snapshot {
	return c.manager.Session().Snapshot()
}

// Refresh resets the mount fingerprint so the next file map remounts. The
// shared runtime is not torn down.
func (c *Controller) Refresh() runtime.Snapshot {
	c.manager.Refresh()
	return c.manager.Session().Snapshot()
}

// Subscribe exposes the session event stream for transports.
func (c *Controller) Subscribe() (<-chan runtime.Event, func()) {
	return c.manager.Session().Subscribe()
}
