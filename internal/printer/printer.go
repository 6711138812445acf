// Package printer routes formatted values to the screen, the console log and the per-instance log file.
package printer

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/registry"
	"github.com/coffersTech/als/internal/valuefmt"
)

// NoContext is the caller label of a print without a context object.
const NoContext = "[NoContext]"

// Context is the object a print is attributed to.
type Context interface {
	valuefmt.Named
	NetRole() model.NetRole
}

// Screen shows transient on-screen messages.
type Screen interface {
	Show(key string, duration time.Duration, color Color, text string)
}

// Sink receives file log records. *storage.Store implements it.
type Sink interface {
	Log(instance, caller, sourceID string, level model.Level, message string) error
}

// WriterScreen writes every on-screen message as one line to W.
type WriterScreen struct {
	mu sync.Mutex
	W  io.Writer
}

func (s *WriterScreen) Show(key string, duration time.Duration, color Color, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.W, text)
}

// Options configures a Printer.
type Options struct {
	Screen   Screen
	Sink     Sink
	Instance string
	Logger   logr.Logger

	// ShowCallerName prefixes on-screen text with the full caller label.
	ShowCallerName bool
	// FileLog enables writes to Sink.
	FileLog bool
	// UniqueOnly makes Task drop a message equal to the previous one from the same source.
	UniqueOnly bool
	// Presets overrides entries of DefaultPresets.
	Presets map[Preset]Config
}

// Printer is safe for concurrent use.
type Printer struct {
	opts    Options
	presets map[Preset]Config

	mu   sync.Mutex
	last map[string]string
}

func New(opts Options) *Printer {
	presets := DefaultPresets()
	for k, v := range opts.Presets {
		presets[k] = v
	}
	return &Printer{opts: opts, presets: presets, last: make(map[string]string)}
}

// Preset returns the Config registered for pr.
func (p *Printer) Preset(pr Preset) Config {
	return p.presets[pr]
}

// Print formats args and sends the text wherever cfg.Mode asks.
// The file log is written whenever ctx is set and file logging is enabled.
func (p *Printer) Print(cfg Config, ctx Context, sourceID string, args ...any) error {
	return p.print(cfg, ctx, sourceID, true, valuefmt.Sprint(args...))
}

// Task prints like Print, but with UniqueOnly set a repeat of the source's previous message
// is shown on screen and not logged.
func (p *Printer) Task(cfg Config, ctx Context, sourceID string, args ...any) error {
	value := valuefmt.Sprint(args...)
	record := true
	if p.opts.UniqueOnly {
		p.mu.Lock()
		prev, seen := p.last[sourceID]
		record = !seen || prev != value
		p.last[sourceID] = value
		p.mu.Unlock()
	}
	return p.print(cfg, ctx, sourceID, record, value)
}

// Forget clears the UniqueOnly memory of sourceID.
func (p *Printer) Forget(sourceID string) {
	p.mu.Lock()
	delete(p.last, sourceID)
	p.mu.Unlock()
}

func (p *Printer) print(cfg Config, ctx Context, sourceID string, record bool, value string) error {
	caller, network, hasContext := label(ctx)

	if cfg.Mode.ToScreen() && p.opts.Screen != nil {
		text := network + value
		if p.opts.ShowCallerName {
			text = caller + " " + value
		}
		p.opts.Screen.Show(cfg.Key, cfg.Duration, cfg.Color, text)
	}
	if !record {
		return nil
	}

	if cfg.Mode.ToLog() {
		line := caller + " " + value
		switch cfg.Level {
		case model.LevelError:
			p.opts.Logger.Error(nil, line, "source", sourceID)
		case model.LevelWarning:
			p.opts.Logger.Info(line, "source", sourceID, "severity", "warning")
		default:
			p.opts.Logger.Info(line, "source", sourceID)
		}
	}

	if !hasContext || !p.opts.FileLog || p.opts.Sink == nil {
		return nil
	}
	if err := p.opts.Sink.Log(p.opts.Instance, caller, sourceID, cfg.Level, value); err != nil {
		return fmt.Errorf("file log: %w", err)
	}
	return nil
}

// Log prints with a preset, attributing the message to the calling line.
func (p *Printer) Log(pr Preset, ctx Context, args ...any) error {
	return p.Print(p.presets[pr], ctx, SourceID(1), args...)
}

func (p *Printer) Info(ctx Context, args ...any) error {
	return p.Print(p.presets[PrintInfo], ctx, SourceID(1), args...)
}

func (p *Printer) Warn(ctx Context, args ...any) error {
	return p.Print(p.presets[PrintWarn], ctx, SourceID(1), args...)
}

func (p *Printer) Error(ctx Context, args ...any) error {
	return p.Print(p.presets[PrintError], ctx, SourceID(1), args...)
}

// Label returns the caller label of ctx and its network prefix.
func Label(ctx Context) (caller, network string) {
	caller, network, _ = label(ctx)
	return caller, network
}

func label(ctx Context) (caller, network string, ok bool) {
	if ctx == nil {
		return NoContext, "", false
	}
	name, net, ok := describe(ctx)
	if !ok {
		return NoContext, "", false
	}
	network = net.Tag()
	return network + "[" + strings.ReplaceAll(name, "_C_", " #") + "]", network, true
}

// describe reads ctx, treating a panicking or typed-nil context as absent.
func describe(ctx Context) (name string, net model.NetRole, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return ctx.DisplayName(), ctx.NetRole(), true
}

// SourceID returns "file.go:line" of the caller skip frames above SourceID's caller.
func SourceID(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Registered adapts a registry handle to a Context. It returns nil when h is no longer alive.
func Registered(reg *registry.Store, h registry.Handle) Context {
	net, ok := reg.Net(h)
	if !ok {
		return nil
	}
	return handleContext{name: reg.Name(h), net: net}
}

type handleContext struct {
	name string
	net  model.NetRole
}

func (c handleContext) DisplayName() string    { return c.name }
func (c handleContext) NetRole() model.NetRole { return c.net }
