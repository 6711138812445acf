package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// DefaultLoopBuffer is the initial queue capacity of a MainLoop.
const DefaultLoopBuffer = 64

// Dispatcher runs completion callbacks on the goroutine that owns viewer state.
type Dispatcher interface {
	// Post queues fn. It reports false when fn will never run.
	Post(fn func()) bool
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func()) bool

func (f DispatcherFunc) Post(fn func()) bool { return f(fn) }

// Inline runs callbacks on the posting goroutine.
var Inline Dispatcher = DispatcherFunc(func(fn func()) bool {
	fn()
	return true
})

// MainLoop is a single goroutine draining a queue of callbacks. Post never
// blocks, so callbacks may post from the loop itself and before Run starts.
type MainLoop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	logger logr.Logger
}

// NewMainLoop creates a loop whose queue starts with room for buffsize callbacks.
func NewMainLoop(buffsize int, logger logr.Logger) *MainLoop {
	if buffsize <= 0 {
		buffsize = DefaultLoopBuffer
	}
	return &MainLoop{
		queue:  make([]func(), 0, buffsize),
		wake:   make(chan struct{}, 1),
		logger: logger.WithName("mainloop"),
	}
}

// Post queues fn. It reports false once the loop is closed.
func (m *MainLoop) Post(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
	m.signal()
	return true
}

// Run executes queued callbacks until the loop is closed or ctx is done.
// Callbacks already queued when the loop closes still run.
func (m *MainLoop) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, m.Close)
	defer stop()

	for {
		m.mu.Lock()
		batch, closed := m.queue, m.closed
		m.queue = nil
		m.mu.Unlock()

		for _, fn := range batch {
			m.invoke(fn)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-m.wake
	}
}

// Close stops accepting callbacks. It is safe to call more than once.
func (m *MainLoop) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *MainLoop) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *MainLoop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(fmt.Errorf("panic [%v]", r), "callback panicked")
		}
	}()
	fn()
}
