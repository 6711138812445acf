// Package session holds the identifier shared by every record of one process run.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Format selects how session ids are generated.
type Format string

const (
	FormatTime Format = "time"
	FormatUUID Format = "uuid"
)

const timeLayout = "2006.01.02-15.04.05"

// Tracker creates a session id once and returns it for the rest of its life.
type Tracker struct {
	once    sync.Once
	id      string
	started bool
	mu      sync.RWMutex
	format  Format
	now     func() time.Time
}

// NewTracker creates a tracker. A nil now uses time.Now.
func NewTracker(format Format, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{format: format, now: now}
}

// ID returns the session id, creating it on first use.
func (t *Tracker) ID() string {
	t.once.Do(t.create)
	return t.id
}

// Start creates the id eagerly. It reports whether this call created it.
func (t *Tracker) Start() bool {
	created := false
	t.once.Do(func() {
		t.create()
		created = true
	})
	return created
}

// Started reports whether the id exists.
func (t *Tracker) Started() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started
}

func (t *Tracker) create() {
	var id string
	switch t.format {
	case FormatUUID:
		id = uuid.NewString()
	default:
		id = t.now().Format(timeLayout)
	}

	t.mu.Lock()
	t.id = id
	t.started = true
	t.mu.Unlock()
}

var (
	defaultMu      sync.Mutex
	defaultTracker = NewTracker(FormatTime, nil)
)

// Default returns the process-wide tracker.
func Default() *Tracker {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultTracker
}

// Configure replaces the process-wide tracker if no id has been created yet.
// It reports whether the replacement happened.
func Configure(format Format) bool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultTracker.Started() {
		return false
	}
	defaultTracker = NewTracker(format, nil)
	return true
}

// ID returns the process-wide session id.
func ID() string { return Default().ID() }
