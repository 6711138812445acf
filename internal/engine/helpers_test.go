package engine

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/als/internal/codec"
	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/session"
	"github.com/coffersTech/als/internal/storage"
)

const testInstance = "Demo_Client (1)"

var baseTime = time.Date(2025, 3, 14, 9, 26, 50, 0, time.Local)

func newTestEngine(t *testing.T) *QueryEngine {
	t.Helper()
	s, err := storage.Open(storage.Options{
		Dir:     t.TempDir(),
		Project: "Demo",
		Logger:  testr.New(t),
		Session: session.NewTracker(session.FormatTime, nil),
	})
	require.NoError(t, err)
	return NewQueryEngine(s, testr.New(t))
}

// rec builds a record logged offset seconds after baseTime.
func rec(counter uint64, session, caller, source string, level model.Level, msg string, offset int) model.Record {
	return model.Record{
		Counter:   counter,
		Timestamp: baseTime.Add(time.Duration(offset) * time.Second),
		SessionID: session,
		Caller:    caller,
		SourceID:  source,
		Level:     level,
		Message:   msg,
	}
}

// writeInstance writes raw lines and encoded records, in argument order, to the test instance.
func writeInstance(t *testing.T, qe *QueryEngine, items ...any) {
	t.Helper()
	var b strings.Builder
	for _, it := range items {
		switch v := it.(type) {
		case model.Record:
			b.WriteString(codec.Encode(v))
		case string:
			b.WriteString(v)
			b.WriteString("\n")
		default:
			t.Fatalf("unsupported item %T", it)
		}
	}
	require.NoError(t, os.WriteFile(qe.Store().Path(testInstance), []byte(b.String()), 0o644))
}

func counters(records []model.Record) []uint64 {
	out := make([]uint64, len(records))
	for i, r := range records {
		out[i] = r.Counter
	}
	return out
}
