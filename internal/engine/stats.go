package engine

import (
	"sort"

	"github.com/coffersTech/als/internal/model"
)

// Stats summarizes a set of records for the viewer dashboard.
type Stats struct {
	Total      int            `json:"total"`
	LevelDist  map[string]int `json:"level_dist"`  // e.g. "Warning": 12
	TopSources []SourceCount  `json:"top_sources"` // most frequent first
	Sessions   int            `json:"sessions"`
	Contexts   int            `json:"contexts"`
}

// SourceCount is the number of records logged by one source id.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// DefaultTopSources bounds Stats.TopSources.
const DefaultTopSources = 10

// ComputeStats counts records by level, source, session and caller.
func ComputeStats(records []model.Record, top int) Stats {
	if top <= 0 {
		top = DefaultTopSources
	}
	stats := Stats{
		Total:     len(records),
		LevelDist: make(map[string]int),
	}

	sources := make(map[string]int)
	sessions := make(map[string]struct{})
	contexts := make(map[string]struct{})
	for i := range records {
		r := &records[i]
		n := r.Count
		if n == 0 {
			n = 1
		}
		stats.LevelDist[r.Level.String()] += n
		sources[r.SourceID] += n
		sessions[r.SessionID] = struct{}{}
		contexts[r.Caller] = struct{}{}
	}
	stats.Sessions = len(sessions)
	stats.Contexts = len(contexts)

	for src, c := range sources {
		stats.TopSources = append(stats.TopSources, SourceCount{Source: src, Count: c})
	}
	sort.Slice(stats.TopSources, func(i, j int) bool {
		a, b := stats.TopSources[i], stats.TopSources[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Source < b.Source
	})
	if len(stats.TopSources) > top {
		stats.TopSources = stats.TopSources[:top]
	}
	return stats
}
