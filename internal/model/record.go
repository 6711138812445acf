package model

import (
	"strings"
	"time"
)

// Wildcard literals accepted by the viewer filters.
const (
	AllLevels   = "All Levels"
	AllContexts = "All Contexts"
)

// Record represents one logged event.
// Count, FirstSeen, LastSeen and Period are only filled by aggregation and are never persisted.
type Record struct {
	Counter   uint64    `json:"counter"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Caller    string    `json:"caller"`
	SourceID  string    `json:"source_id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`

	Count     int       `json:"count,omitempty"`
	FirstSeen time.Time `json:"first_seen,omitempty"`
	LastSeen  time.Time `json:"last_seen,omitempty"`
	Period    string    `json:"period,omitempty"`
}

// Getters used by the nanoql matcher.
func (r *Record) GetCounter() uint64 { return r.Counter }
func (r *Record) GetSession() string { return r.SessionID }
func (r *Record) GetCaller() string  { return r.Caller }
func (r *Record) GetSource() string  { return r.SourceID }
func (r *Record) GetLevel() string   { return r.Level.String() }
func (r *Record) GetMessage() string { return r.Message }

// Level is the severity of a record.
type Level uint8

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// String returns the on-disk token of the level.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "Info"
	case LevelWarning:
		return "Warning"
	case LevelError:
		return "Error"
	default:
		return "Unknown"
	}
}

// ParseLevel converts a level token to Level. Matching is case-insensitive.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return LevelInfo, true
	case "warning", "warn":
		return LevelWarning, true
	case "error", "err":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown tokens decode as Info.
func (l *Level) UnmarshalText(b []byte) error {
	lvl, _ := ParseLevel(string(b))
	*l = lvl
	return nil
}

// NetRole is the network role of the process that owns a context.
type NetRole uint8

const (
	Standalone NetRole = iota
	ListenServer
	Client
	DedicatedServer
)

// Tag returns the prefix used in caller labels.
func (n NetRole) Tag() string {
	switch n {
	case ListenServer:
		return "[Server] "
	case Client:
		return "[Client] "
	case DedicatedServer:
		return "[DedicatedServer] "
	default:
		return ""
	}
}
