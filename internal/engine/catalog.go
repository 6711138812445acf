package engine

import (
	"errors"
	"strings"

	"github.com/coffersTech/als/internal/codec"
	"github.com/coffersTech/als/internal/storage"
)

var (
	ErrNoSessions = errors.New("Error: No sessions found. Please check if the file contains a session, or perform a simple ALS Print to generate one.")
	ErrNoContexts = errors.New("Error: No ALS logs found for this session")
)

// sessionFields is the minimum token count of a line that names a session.
const sessionFields = 4

// ContextEntry is one distinct caller label of a session.
type ContextEntry struct {
	// Raw is the label as written, e.g. "[Client] [BP_Hero #0]".
	Raw string `json:"raw"`
	// Name is the label without the network tag or brackets.
	Name string `json:"name"`
	// Network is the network tag without brackets, empty when absent.
	Network string `json:"network"`
}

// Sessions lists the session ids of content in first-seen order.
func Sessions(content string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, line := range splitLines(content) {
		parts := codec.Fields(line)
		if len(parts) < sessionFields {
			continue
		}
		sid := parts[2]
		if _, ok := seen[sid]; ok {
			continue
		}
		seen[sid] = struct{}{}
		out = append(out, sid)
	}
	if len(out) == 0 {
		return nil, ErrNoSessions
	}
	return out, nil
}

// Contexts lists the distinct caller labels logged in session, newest first.
// Session markers are never reported.
func Contexts(content, session string) ([]ContextEntry, error) {
	lines := splitLines(content)
	seen := make(map[string]struct{})
	var out []ContextEntry

	for i := len(lines) - 1; i >= 0; i-- {
		parts := codec.Fields(lines[i])
		if len(parts) < codec.FieldCount || parts[2] != session {
			continue
		}
		raw := parts[3]
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, ParseContext(raw))
	}
	if len(out) == 0 {
		return nil, ErrNoContexts
	}

	kept := out[:0]
	for _, c := range out {
		if !strings.Contains(c.Raw, codec.SessionCreatedCaller) {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// ParseContext splits a caller label into its network tag and name.
func ParseContext(raw string) ContextEntry {
	entry := ContextEntry{Raw: raw}
	strip := strings.NewReplacer("[", "", "]", "")

	if strings.Contains(raw, "] [") {
		end := strings.Index(raw, "]")
		if end > 0 {
			entry.Network = raw[1:end]
		}
		entry.Name = strings.TrimSpace(strip.Replace(raw[end:]))
		return entry
	}
	entry.Name = strings.TrimSpace(strip.Replace(raw))
	return entry
}

// LatestSession returns the last session id of an instance file.
func (qe *QueryEngine) LatestSession(instance string, ignoreSizeCheck bool) (string, error) {
	sessions, err := qe.Sessions(instance, ignoreSizeCheck)
	if err != nil {
		return "", err
	}
	return sessions[len(sessions)-1], nil
}

// Sessions reads instance and lists its sessions.
func (qe *QueryEngine) Sessions(instance string, ignoreSizeCheck bool) ([]string, error) {
	content, err := qe.store.ReadContent(instance, storage.ReadOptions{
		IgnoreSizeCheck: ignoreSizeCheck,
		IncludeArchived: qe.IncludeArchived,
		MaxParseMiB:     qe.MaxParseMiB,
	})
	if err != nil {
		return nil, err
	}
	return Sessions(content)
}

// Contexts reads instance and lists the contexts of session.
func (qe *QueryEngine) Contexts(instance, session string, ignoreSizeCheck bool) ([]ContextEntry, error) {
	content, err := qe.store.ReadContent(instance, storage.ReadOptions{
		IgnoreSizeCheck: ignoreSizeCheck,
		IncludeArchived: qe.IncludeArchived,
		MaxParseMiB:     qe.MaxParseMiB,
	})
	if err != nil {
		return nil, err
	}
	return Contexts(content, session)
}
