// Package runtime owns the singleton dev-server runtime and its
// boot/mount/install/start lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stagebox/internal/logging"
	"stagebox/internal/metrics"
	"stagebox/internal/project"
)

// localURLPattern scrapes a local dev-server URL out of process output.
// Secondary readiness signal next to the port probe.
var localURLPattern = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0):\d+/?`)

// Manager drives the preview state machine over a Backend. Phases run
// strictly sequentially per session; the shared runtime handle is acquired
// through the package singleton.
type Manager struct {
	backend        Backend
	session        *Session
	installTimeout time.Duration
	startTimeout   time.Duration
	log            *zap.Logger

	mu        sync.Mutex
	running   bool
	devActive bool
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithInstallTimeout bounds the dependency install wait.
func WithInstallTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.installTimeout = d }
}

// WithStartTimeout bounds the wait for dev-server readiness.
func WithStartTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.startTimeout = d }
}

// NewManager creates a Manager for the given backend.
func NewManager(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:        backend,
		session:        NewSession(),
		installTimeout: 90 * time.Second,
		startTimeout:   60 * time.Second,
		log:            logging.L().With(zap.String("component", "runtime")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session exposes the session state for the façade layer.
func (m *Manager) Session() *Session { return m.session }

// Capable reports whether the isolation capability is present without
// booting anything.
func (m *Manager) Capable(ctx context.Context) error {
	return m.backend.Probe(ctx)
}

// Preview runs the full pipeline for a file map: boot (or reuse) the shared
// runtime, mount, install, and start the dev server. Returns once the
// session is ready or has failed. A file map whose fingerprint matches the
// currently mounted one is a no-op.
func (m *Manager) Preview(ctx context.Context, files map[string]string) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("a preview phase is already in progress")
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	clean := project.SanitizeFileMap(files)
	tpl := project.Detect(clean)
	clean = m.enforceManifest(tpl, clean)

	fp := project.Fingerprint(clean)
	if fp == m.session.Fingerprint() && m.session.Status() == StatusReady {
		m.log.Debug("file map unchanged, skipping remount", zap.String("fingerprint", fp[:12]))
		metrics.Get().MountsSkippedTotal.Inc()
		return nil
	}

	m.session.setStatus(StatusBooting)
	if _, err := AcquireHandle(ctx, m.backend); err != nil {
		m.session.setError(err.Error())
		return err
	}

	m.session.setStatus(StatusMounting)
	if err := m.backend.WriteFiles(ctx, clean); err != nil {
		m.session.setError(err.Error())
		m.log.Error("mount failed", zap.Error(err))
		return err
	}
	m.session.setFingerprint(fp)
	metrics.Get().MountsTotal.Inc()

	m.install(ctx, tpl)

	return m.start(ctx, tpl)
}

// enforceManifest synthesizes the manifest and bootstrap files. For the
// bundler-based templates the manifest is unconditionally replaced: multiple
// upstream generators may each have emitted their own conflicting one.
func (m *Manager) enforceManifest(tpl project.Template, files map[string]string) map[string]string {
	manifest := project.Synthesize(tpl, files[project.ManifestFileName])
	files[project.ManifestFileName] = manifest.Encode()
	files = project.InjectBootstrap(tpl, files)
	m.log.Info("manifest synthesized",
		zap.String("template", string(tpl)),
		zap.Strings("dependencies", manifest.DependencyNames()))
	return files
}

// install runs the package install with a bounded wait. A timeout or a
// non-zero exit is logged and the session proceeds to the start phase
// anyway: AI-generated manifests pull heavy trees, and blocking on them is
// worse than a possibly incomplete install.
func (m *Manager) install(ctx context.Context, tpl project.Template) {
	m.session.setStatus(StatusInstalling)
	m.session.appendLog("installing dependencies")

	res, err := m.backend.Exec(ctx, []string{"npm", "install", "--no-audit", "--no-fund"}, m.installTimeout)
	switch {
	case err != nil:
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrInstallTimeout, err)
			metrics.Get().InstallTimeoutsTotal.Inc()
		}
		m.log.Warn("dependency install did not complete, continuing anyway",
			zap.String("template", string(tpl)), zap.Error(err))
		m.session.appendLog("warning: " + err.Error())
	case res.ExitCode != 0:
		m.log.Warn("dependency install exited non-zero, continuing anyway",
			zap.Int("exit_code", res.ExitCode), zap.String("stderr", tail(res.Stderr, 2000)))
		m.session.appendLog(fmt.Sprintf("warning: npm install exited with code %d", res.ExitCode))
	default:
		m.session.appendLog("dependencies installed")
	}
}

// start launches the dev server and waits for readiness: the first of a
// URL match in the output or a successful TCP dial on the published port
// wins; later signals are ignored. An earlier dev server from a previous
// mount is stopped first so the relaunch owns the published port.
func (m *Manager) start(ctx context.Context, tpl project.Template) error {
	m.session.setStatus(StatusStarting)

	m.mu.Lock()
	wasActive := m.devActive
	m.mu.Unlock()
	if wasActive {
		if err := m.backend.StopDev(ctx); err != nil {
			m.session.setError(err.Error())
			m.log.Error("failed to stop previous dev server", zap.Error(err))
			return err
		}
		m.mu.Lock()
		m.devActive = false
		m.mu.Unlock()
	}

	lines, err := m.backend.StartDev(ctx, []string{"npm", "run", "dev"})
	if err != nil {
		m.session.setError(err.Error())
		m.log.Error("dev server start failed", zap.Error(err))
		return err
	}
	m.mu.Lock()
	m.devActive = true
	m.mu.Unlock()

	previewURL := "http://" + m.backend.PreviewAddr()
	ready := make(chan struct{})
	var once sync.Once
	markReady := func(signal string) {
		once.Do(func() {
			m.session.setReady(previewURL)
			m.log.Info("preview ready",
				zap.String("url", previewURL),
				zap.String("signal", signal),
				zap.String("template", string(tpl)))
			close(ready)
		})
	}

	probeCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()

	go func() {
		for line := range lines {
			m.session.appendLog(line)
			if localURLPattern.MatchString(line) {
				markReady("output-url")
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-probeCtx.Done():
				return
			case <-ticker.C:
				conn, err := net.DialTimeout("tcp", m.backend.PreviewAddr(), time.Second)
				if err == nil {
					conn.Close()
					markReady("port-open")
					return
				}
			}
		}
	}()

	select {
	case <-ready:
		return nil
	case <-time.After(m.startTimeout):
		err := fmt.Errorf("%w: no readiness signal within %s", ErrStartFailure, m.startTimeout)
		m.session.setError(err.Error())
		return err
	case <-ctx.Done():
		m.session.setError(ctx.Err().Error())
		return ctx.Err()
	}
}

// Refresh clears the mount fingerprint so the next file-map delivery
// remounts, and resets the session to the mounting state. The shared
// runtime handle is untouched.
func (m *Manager) Refresh() {
	m.session.setFingerprint("")
	m.session.setStatus(StatusMounting)
	m.log.Info("session refreshed")
}

// snippetLanguages maps languages the runtime can execute directly to their
// snippet file name and run command.
var snippetLanguages = map[string]struct {
	file string
	run  string
}{
	"javascript": {file: "snippet.mjs", run: "node"},
	"js":         {file: "snippet.mjs", run: "node"},
	"typescript": {file: "snippet.ts", run: "npx --yes tsx"},
	"ts":         {file: "snippet.ts", run: "npx --yes tsx"},
}

// SupportsLanguage reports whether the runtime can execute a language
// in-process without a remote backend.
func SupportsLanguage(language string) bool {
	_, ok := snippetLanguages[strings.ToLower(strings.TrimSpace(language))]
	return ok
}

// ExecuteSnippet runs a one-off code snippet inside the shared runtime.
func (m *Manager) ExecuteSnippet(ctx context.Context, code, language, stdin string, timeout time.Duration) (ExecResult, error) {
	spec, ok := snippetLanguages[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return ExecResult{}, fmt.Errorf("unsupported runtime language: %s", language)
	}

	if _, err := AcquireHandle(ctx, m.backend); err != nil {
		return ExecResult{}, err
	}

	files := map[string]string{".stagebox/" + spec.file: code}
	shell := spec.run + " " + workDir + "/.stagebox/" + spec.file
	if stdin != "" {
		files[".stagebox/stdin"] = stdin
		shell += " < " + workDir + "/.stagebox/stdin"
	}
	if err := m.backend.WriteFiles(ctx, files); err != nil {
		return ExecResult{}, err
	}

	return m.backend.Exec(ctx, []string{"sh", "-c", shell}, timeout)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
