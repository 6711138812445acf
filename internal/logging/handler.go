package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/printer"
	"github.com/coffersTech/als/internal/valuefmt"
)

// ContextKey is the attribute naming the object a record is attributed to.
const ContextKey = "context"

const (
	DefaultQueueSize     = 10000
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
)

var ErrClosed = errors.New("logging: handler closed")

// Sink stores batches of records.
type Sink interface {
	Write(ctx context.Context, batch []model.Record) error
}

// Options configures a Handler.
type Options struct {
	Sink  Sink
	Level slog.Leveler

	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	// ErrorOutput receives drop and sink failure notices. Defaults to stderr.
	ErrorOutput io.Writer
}

// pipeline is shared by a Handler and the handlers derived from it.
type pipeline struct {
	opts  Options
	queue chan model.Record
	done  chan struct{}
	wg    sync.WaitGroup

	// mu orders enqueues before the close that starts the final drain.
	mu     sync.RWMutex
	closed bool
}

// Handler is a slog.Handler that converts records to ALS records and hands
// them to a single background writer. Records are dropped when the queue is full.
type Handler struct {
	p      *pipeline
	attrs  []slog.Attr
	groups []string
	caller string
}

func NewHandler(opts Options) *Handler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.ErrorOutput == nil {
		opts.ErrorOutput = os.Stderr
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	p := &pipeline{
		opts:  opts,
		queue: make(chan model.Record, opts.QueueSize),
		done:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.runLoop()
	return &Handler{p: p, caller: printer.NoContext}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.p.opts.Level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	rec := model.Record{
		Timestamp: r.Time,
		Caller:    h.caller,
		SourceID:  sourceID(r.PC),
		Level:     levelOf(r.Level),
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		appendAttr(&b, "", a)
	}
	prefix := groupPrefix(h.groups)
	r.Attrs(func(a slog.Attr) bool {
		if len(h.groups) == 0 && a.Key == ContextKey {
			rec.Caller = callerOf(a.Value)
			return true
		}
		appendAttr(&b, prefix, a)
		return true
	})
	rec.Message = b.String()
	return h.p.enqueue(rec)
}

func (p *pipeline) enqueue(rec model.Record) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- rec:
	default:
		fmt.Fprintf(p.opts.ErrorOutput, "als: log queue full, dropping record\n")
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if len(h.groups) == 0 && a.Key == ContextKey {
			h2.caller = callerOf(a.Value)
			continue
		}
		h2.attrs = append(h2.attrs, qualify(h.groups, a))
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}

// Close flushes queued records and stops the writer. Later records return ErrClosed.
func (h *Handler) Close() error {
	h.p.mu.Lock()
	if !h.p.closed {
		h.p.closed = true
		close(h.p.done)
	}
	h.p.mu.Unlock()
	h.p.wg.Wait()
	return nil
}

func (p *pipeline) runLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.FlushInterval)
	defer ticker.Stop()

	var batch []model.Record
	send := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.opts.Sink.Write(context.Background(), batch); err != nil {
			fmt.Fprintf(p.opts.ErrorOutput, "als: log sink failed: %v\n", err)
		}
		batch = nil
	}

	for {
		select {
		case rec := <-p.queue:
			batch = append(batch, rec)
			if len(batch) >= p.opts.BatchSize {
				send()
			}
		case <-ticker.C:
			send()
		case <-p.done:
			for {
				select {
				case rec := <-p.queue:
					batch = append(batch, rec)
				default:
					send()
					return
				}
			}
		}
	}
}

func levelOf(l slog.Level) model.Level {
	switch {
	case l >= slog.LevelError:
		return model.LevelError
	case l >= slog.LevelWarn:
		return model.LevelWarning
	default:
		return model.LevelInfo
	}
}

func sourceID(pc uintptr) string {
	if pc == 0 {
		return "unknown:0"
	}
	f, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if f.File == "" {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

func callerOf(v slog.Value) string {
	v = v.Resolve()
	switch x := v.Any().(type) {
	case printer.Context:
		caller, _ := printer.Label(x)
		return caller
	case valuefmt.Named:
		return "[" + strings.ReplaceAll(x.DisplayName(), "_C_", " #") + "]"
	case nil:
		return printer.NoContext
	default:
		return "[" + v.String() + "]"
	}
}

func groupPrefix(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	return strings.Join(groups, ".") + "."
}

func qualify(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 {
		return a
	}
	a.Key = groupPrefix(groups) + a.Key
	return a
}

// appendAttr writes " key=value", flattening groups into dotted keys.
func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner += a.Key + "."
		}
		for _, ga := range v.Group() {
			appendAttr(b, inner, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	switch v.Kind() {
	case slog.KindString:
		b.WriteString(v.String())
	case slog.KindTime:
		b.WriteString(v.Time().Format(time.RFC3339))
	case slog.KindDuration:
		b.WriteString(v.Duration().String())
	default:
		b.WriteString(valuefmt.FormatAny(v.Any()))
	}
}
