// Package codec converts records to and from the delimited line format of ALS log files.
//
// A line carries seven fields joined by Delimiter:
//
//	counter, timestamp, session, caller, source, level, message
//
// and ends with a single newline.
package codec

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/coffersTech/als/internal/model"
)

const (
	Delimiter = "-|ALS|-"

	// FieldCount is the number of fields in a record line.
	FieldCount = 7

	// CommaPlaceholder is restored to "," when a message is decoded.
	CommaPlaceholder = "-c|c-"

	SessionCreatedCaller  = "[SESSION CREATED]"
	SessionCreatedMessage = "[Created a safe Play Session]"
)

var (
	ErrMalformed    = errors.New("malformed log line")
	ErrBadTimestamp = errors.New("unparseable timestamp")
)

const (
	fieldCounter = iota
	fieldTime
	fieldSession
	fieldCaller
	fieldSource
	fieldLevel
	fieldMessage
)

// Encode renders r as one newline-terminated line.
// The message is escaped; the other text fields lose any delimiter and line breaks.
func Encode(r model.Record) string {
	var b strings.Builder
	b.Grow(64 + len(r.Message))

	b.WriteString(strconv.FormatUint(r.Counter, 10))
	b.WriteString(Delimiter)
	b.WriteString(FormatTime(r.Timestamp))
	b.WriteString(Delimiter)
	b.WriteString(sanitize(r.SessionID))
	b.WriteString(Delimiter)
	b.WriteString(sanitize(r.Caller))
	b.WriteString(Delimiter)
	b.WriteString(sanitize(r.SourceID))
	b.WriteString(Delimiter)
	b.WriteString(r.Level.String())
	b.WriteString(Delimiter)
	b.WriteString(Escape(r.Message))
	b.WriteByte('\n')

	return b.String()
}

// SessionMarker renders the five-field line written when a session starts.
// Decode rejects it; the session catalog still picks it up.
func SessionMarker(counter uint64, ts time.Time, session string) string {
	return strconv.FormatUint(counter, 10) + Delimiter +
		FormatTime(ts) + Delimiter +
		sanitize(session) + Delimiter +
		SessionCreatedCaller + Delimiter +
		SessionCreatedMessage + "\n"
}

// Fields splits a line into trimmed tokens without interpreting them.
func Fields(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil
	}
	parts := strings.Split(line, Delimiter)
	for i, p := range parts {
		parts[i] = cleanToken(p)
	}
	return parts
}

// Decode parses one line.
// Lines with fewer than FieldCount fields or a bad counter yield ErrMalformed.
// A bad timestamp yields ErrBadTimestamp together with the otherwise decoded record.
func Decode(line string) (model.Record, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, Delimiter)
	if len(parts) < FieldCount {
		return model.Record{}, ErrMalformed
	}

	counter, err := strconv.ParseUint(cleanToken(parts[fieldCounter]), 10, 64)
	if err != nil {
		return model.Record{}, ErrMalformed
	}

	level, _ := model.ParseLevel(cleanToken(parts[fieldLevel]))

	// Extra tokens can only come from writers that did not strip the delimiter.
	raw := parts[fieldMessage]
	if len(parts) > FieldCount {
		raw = strings.Join(parts[fieldMessage:], "")
	}

	rec := model.Record{
		Counter:   counter,
		SessionID: cleanToken(parts[fieldSession]),
		Caller:    cleanToken(parts[fieldCaller]),
		SourceID:  cleanToken(parts[fieldSource]),
		Level:     level,
		Message:   DecodeMessage(cleanToken(raw)),
	}

	ts, err := ParseTime(cleanToken(parts[fieldTime]))
	if err != nil {
		return rec, ErrBadTimestamp
	}
	rec.Timestamp = ts
	return rec, nil
}

// DecodeMessage reverses Escape and restores comma placeholders.
func DecodeMessage(s string) string {
	return strings.ReplaceAll(Unescape(s), CommaPlaceholder, ",")
}

// cleanToken drops one pair of wrapping quotes and surrounding whitespace.
func cleanToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' && !escapedAt(s, len(s)-1) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// escapedAt reports whether the byte at i is preceded by an odd run of backslashes.
func escapedAt(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func sanitize(s string) string {
	s = stripDelimiter(s)
	if strings.ContainsAny(s, "\r\n") {
		s = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
	}
	return s
}
