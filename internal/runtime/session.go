package runtime

import (
	"sync"
	"time"

	"stagebox/internal/metrics"
)

// Status is a preview session lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusBooting    Status = "booting"
	StatusMounting   Status = "mounting"
	StatusInstalling Status = "installing"
	StatusStarting   Status = "starting"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// maxLogLines bounds the per-session log ring; oldest entries are dropped.
const maxLogLines = 500

// LogLine is one captured line of runtime output.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// EventType identifies a session event delivered to subscribers.
type EventType string

const (
	EventStatus EventType = "status"
	EventLog    EventType = "log"
	EventReady  EventType = "ready"
	EventError  EventType = "error"
)

// Event is one externally observable session state change.
type Event struct {
	Type       EventType `json:"type"`
	Status     Status    `json:"status,omitempty"`
	Line       *LogLine  `json:"line,omitempty"`
	PreviewURL string    `json:"preview_url,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Session is the mutable state of one active preview. PreviewURL is set if
// and only if the status is ready.
type Session struct {
	mu          sync.RWMutex
	status      Status
	previewURL  string
	logLines    []LogLine
	fingerprint string
	subscribers map[chan Event]bool
}

// Snapshot is a point-in-time copy of session state for API responses.
type Snapshot struct {
	Status      Status    `json:"status"`
	PreviewURL  string    `json:"preview_url,omitempty"`
	LogLines    []LogLine `json:"log_lines"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// NewSession creates an idle session.
func NewSession() *Session {
	return &Session{
		status:      StatusIdle,
		subscribers: make(map[chan Event]bool),
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// PreviewURL returns the preview URL, empty unless the session is ready.
func (s *Session) PreviewURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previewURL
}

// Fingerprint returns the hash of the last mounted file map.
func (s *Session) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}

// Snapshot copies the current state, including the log ring.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := make([]LogLine, len(s.logLines))
	copy(lines, s.logLines)
	return Snapshot{
		Status:      s.status,
		PreviewURL:  s.previewURL,
		LogLines:    lines,
		Fingerprint: s.fingerprint,
	}
}

// Subscribe registers an event channel. The returned func unsubscribes.
// Events are dropped, not blocked on, when a subscriber is slow.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.subscribers[ch] = true
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if s.subscribers[ch] {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	if status != StatusReady {
		s.previewURL = ""
	}
	s.mu.Unlock()
	metrics.Get().SetSessionPhase(string(status))
	s.publish(Event{Type: EventStatus, Status: status, Timestamp: time.Now()})
}

func (s *Session) setReady(previewURL string) {
	s.mu.Lock()
	s.status = StatusReady
	s.previewURL = previewURL
	s.mu.Unlock()
	metrics.Get().SetSessionPhase(string(StatusReady))
	s.publish(Event{Type: EventReady, Status: StatusReady, PreviewURL: previewURL, Timestamp: time.Now()})
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	s.status = StatusError
	s.previewURL = ""
	s.mu.Unlock()
	metrics.Get().SetSessionPhase(string(StatusError))
	s.publish(Event{Type: EventError, Status: StatusError, Message: msg, Timestamp: time.Now()})
}

func (s *Session) setFingerprint(fp string) {
	s.mu.Lock()
	s.fingerprint = fp
	s.mu.Unlock()
}

func (s *Session) appendLog(text string) {
	line := LogLine{Timestamp: time.Now(), Text: text}
	s.mu.Lock()
	s.logLines = append(s.logLines, line)
	if len(s.logLines) > maxLogLines {
		s.logLines = s.logLines[len(s.logLines)-maxLogLines:]
	}
	s.mu.Unlock()
	s.publish(Event{Type: EventLog, Line: &line, Timestamp: line.Timestamp})
}

func (s *Session) publish(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; drop rather than block the
			// state machine.
		}
	}
}
