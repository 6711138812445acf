package engine

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// RateMeter tracks records ingested per second.
type RateMeter struct {
	writeCounter atomic.Int64
	total        atomic.Int64
	currentRate  atomic.Uint64 // float64 bits
}

// Add records n ingested records.
func (m *RateMeter) Add(n int) {
	m.writeCounter.Add(int64(n))
	m.total.Add(int64(n))
}

// Tick folds the count since the previous tick into the rate.
func (m *RateMeter) Tick(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	count := m.writeCounter.Swap(0)
	m.currentRate.Store(math.Float64bits(float64(count) / elapsed.Seconds()))
}

// Start ticks every interval until ctx is done.
func (m *RateMeter) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Tick(interval)
			}
		}
	}()
}

// Rate returns the ingestion rate (records/sec) of the last interval.
func (m *RateMeter) Rate() float64 {
	return math.Float64frombits(m.currentRate.Load())
}

// Total returns the number of records ingested since creation.
func (m *RateMeter) Total() int64 {
	return m.total.Load()
}
