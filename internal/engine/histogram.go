package engine

import (
	"sort"
	"time"

	"github.com/coffersTech/als/internal/model"
)

type HistogramPoint struct {
	Time  int64 `json:"time"` // bucket start, unix nanoseconds
	Count int   `json:"count"`
}

// ComputeHistogram aggregates record counts over time buckets of width interval.
// Aggregated records count once per occurrence, bucketed at FirstSeen.
func ComputeHistogram(records []model.Record, interval time.Duration) []HistogramPoint {
	if interval <= 0 {
		interval = time.Minute
	}
	step := int64(interval)

	buckets := make(map[int64]int)
	for i := range records {
		r := &records[i]
		ts := r.Timestamp
		n := 1
		if r.Count > 0 {
			n = r.Count
			ts = r.FirstSeen
		}
		if ts.IsZero() {
			continue
		}
		nanos := ts.UnixNano()
		bucket := (nanos / step) * step
		if nanos < 0 && nanos%step != 0 {
			bucket -= step
		}
		buckets[bucket] += n
	}

	points := make([]HistogramPoint, 0, len(buckets))
	for t, c := range buckets {
		points = append(points, HistogramPoint{Time: t, Count: c})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Time < points[j].Time
	})
	return points
}
