package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Callback receives the outcome of an issued query.
type Callback func(Result, error)

// Viewer owns the query generation of one viewer instance.
// Issuing a query supersedes every query issued before it.
type Viewer struct {
	engine     *QueryEngine
	dispatcher Dispatcher

	generation atomic.Uint64
	inflight   sync.WaitGroup
}

// NewViewer creates a Viewer whose callbacks run through d.
func NewViewer(qe *QueryEngine, d Dispatcher) *Viewer {
	if d == nil {
		d = Inline
	}
	return &Viewer{engine: qe, dispatcher: d}
}

// Issue runs p in the background and delivers cb through the dispatcher
// at most once, and only if no newer query was issued or Cancel called meanwhile.
func (v *Viewer) Issue(ctx context.Context, p Params, cb Callback) uint64 {
	gen := v.generation.Add(1)
	current := func() bool { return v.generation.Load() == gen }

	v.inflight.Add(1)
	go func() {
		defer v.inflight.Done()

		res, err := v.engine.Run(ctx, p, func() bool { return !current() })
		if !current() {
			return
		}
		v.dispatcher.Post(func() {
			if current() {
				cb(res, err)
			}
		})
	}()
	return gen
}

// IssueSync runs p on the calling goroutine. It still supersedes earlier
// queries and returns ErrCancelled if it is itself superseded.
func (v *Viewer) IssueSync(ctx context.Context, p Params) (Result, error) {
	gen := v.generation.Add(1)
	superseded := func() bool { return v.generation.Load() != gen }

	res, err := v.engine.Run(ctx, p, superseded)
	if superseded() {
		return Result{}, ErrCancelled
	}
	return res, err
}

// Cancel supersedes the outstanding query without issuing a new one.
func (v *Viewer) Cancel() {
	v.generation.Add(1)
}

// Generation returns the current generation.
func (v *Viewer) Generation() uint64 {
	return v.generation.Load()
}

// Wait blocks until every background query has finished.
func (v *Viewer) Wait() {
	v.inflight.Wait()
}
