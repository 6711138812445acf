package engine

import (
	"fmt"
	"time"

	"github.com/coffersTech/als/internal/model"
)

// PeriodLayout formats the bounds of an aggregated group.
const PeriodLayout = "15:04:05"

type groupKey struct {
	source  string
	message string
}

// Aggregate collapses records sharing (SourceID, Message) into one record per group.
// The group keeps the fields of its first member in input order, the smallest
// counter, and the min and max timestamps. Output order is unspecified.
func Aggregate(records []model.Record) []model.Record {
	index := make(map[groupKey]int, len(records))
	out := make([]model.Record, 0, len(records))

	for _, rec := range records {
		key := groupKey{source: rec.SourceID, message: rec.Message}
		i, ok := index[key]
		if !ok {
			rec.Count = 1
			rec.FirstSeen = rec.Timestamp
			rec.LastSeen = rec.Timestamp
			index[key] = len(out)
			out = append(out, rec)
			continue
		}

		g := &out[i]
		g.Count++
		if rec.Timestamp.Before(g.FirstSeen) {
			g.FirstSeen = rec.Timestamp
		}
		if rec.Timestamp.After(g.LastSeen) {
			g.LastSeen = rec.Timestamp
		}
		if rec.Counter < g.Counter {
			g.Counter = rec.Counter
		}
	}

	for i := range out {
		out[i].Period = Period(out[i])
	}
	return out
}

// Period returns the summary shown next to an aggregated record.
func Period(rec model.Record) string {
	if rec.Count <= 1 {
		t := rec.FirstSeen
		if t.IsZero() {
			t = rec.Timestamp
		}
		return fmt.Sprintf("(1 time logged on %s:%03d)", t.Format(PeriodLayout), t.Nanosecond()/int(time.Millisecond))
	}
	return fmt.Sprintf("(%d times logged from %s to %s)",
		rec.Count, rec.FirstSeen.Format(PeriodLayout), rec.LastSeen.Format(PeriodLayout))
}
