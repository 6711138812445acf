package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueDispatcher holds posted callbacks until drained.
type queueDispatcher struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queueDispatcher) Post(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fns = append(q.fns, fn)
	return true
}

func (q *queueDispatcher) drain() int {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func TestViewerSupersededQueryNeverDelivers(t *testing.T) {
	qe := newTestEngine(t)
	seed(t, qe)
	q := &queueDispatcher{}
	v := NewViewer(qe, q)

	var got []string
	v.Issue(context.Background(), Params{Instance: testInstance, SessionID: "S1"}, func(Result, error) {
		got = append(got, "A")
	})
	v.Wait()
	v.Issue(context.Background(), Params{Instance: testInstance, SessionID: "S2"}, func(res Result, err error) {
		require.NoError(t, err)
		assert.Equal(t, []uint64{40}, counters(res.Records))
		got = append(got, "B")
	})
	v.Wait()

	assert.Equal(t, 2, q.drain())
	assert.Equal(t, []string{"B"}, got)
}

func TestViewerCancel(t *testing.T) {
	qe := newTestEngine(t)
	seed(t, qe)
	q := &queueDispatcher{}
	v := NewViewer(qe, q)

	called := false
	gen := v.Issue(context.Background(), Params{Instance: testInstance}, func(Result, error) { called = true })
	v.Wait()
	v.Cancel()
	q.drain()

	assert.False(t, called)
	assert.Equal(t, gen+1, v.Generation())
}

func TestViewerDeliversErrorsOnce(t *testing.T) {
	qe := newTestEngine(t)
	q := &queueDispatcher{}
	v := NewViewer(qe, q)

	calls := 0
	v.Issue(context.Background(), Params{Instance: "Missing_Client (0)"}, func(_ Result, err error) {
		calls++
		assert.Error(t, err)
	})
	v.Wait()
	q.drain()
	q.drain()
	assert.Equal(t, 1, calls)
}

func TestViewerIssueSync(t *testing.T) {
	qe := newTestEngine(t)
	seed(t, qe)
	v := NewViewer(qe, nil)

	res, err := v.IssueSync(context.Background(), Params{Instance: testInstance, SessionID: "S1", Level: "Error"})
	require.NoError(t, err)
	assert.Equal(t, []uint64{20}, counters(res.Records))
}

func TestViewerThroughMainLoop(t *testing.T) {
	qe := newTestEngine(t)
	seed(t, qe)
	loop := NewMainLoop(0, testr.New(t))
	v := NewViewer(qe, loop)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	results := make(chan Result, 1)
	v.Issue(ctx, Params{Instance: testInstance, SessionID: "S1"}, func(res Result, err error) {
		assert.NoError(t, err)
		results <- res
	})

	select {
	case res := <-results:
		assert.Equal(t, []uint64{10, 20, 30, 50}, counters(res.Records))
	case <-time.After(5 * time.Second):
		t.Fatal("callback not delivered")
	}

	v.Wait()
	cancel()
	<-done
}
