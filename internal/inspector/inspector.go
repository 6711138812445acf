// Package inspector polls properties of live host objects and logs their value changes.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/registry"
	"github.com/coffersTech/als/internal/valuefmt"
)

// DefaultRefreshInterval is the poll period of a watch.
const DefaultRefreshInterval = 100 * time.Millisecond

var (
	ErrDeadObject      = errors.New("object is no longer alive")
	ErrUnknownProperty = errors.New("unknown property")
)

// Sink receives the records produced by watches. *storage.Store implements it.
type Sink interface {
	Log(instance, caller, sourceID string, level model.Level, message string) error
}

// ComponentOwner is implemented by objects whose components can be inspected too.
type ComponentOwner interface {
	Components() []registry.Handle
}

// Options configures an Inspector.
type Options struct {
	Registry *registry.Store
	Sink     Sink
	Instance string
	Logger   logr.Logger

	// RefreshInterval defaults to DefaultRefreshInterval.
	RefreshInterval time.Duration
	// LogEveryPoll emits on every poll instead of only when the value changed.
	LogEveryPoll bool
}

// Watch is one subscribed property.
type Watch struct {
	ID       uint64 `json:"id"`
	Context  string `json:"context"`
	Owner    string `json:"owner"`
	Property string `json:"property"`
	Last     string `json:"last"`

	ctx, owner registry.Handle
	polled     bool
	due        time.Time
}

// Inspector owns the set of active watches.
type Inspector struct {
	opts Options

	mu      sync.Mutex
	watches map[uint64]*Watch
	nextID  uint64
}

// New creates an Inspector. Watches are dropped as soon as their context or owner is destroyed.
func New(opts Options) *Inspector {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	opts.Logger = opts.Logger.WithName("inspector")
	in := &Inspector{
		opts:    opts,
		watches: make(map[uint64]*Watch),
	}
	opts.Registry.OnDestroyed(in.dropHandle)
	return in
}

// Toggle subscribes to property of owner, logged under the context object ctxObj,
// or unsubscribes if that watch already exists. It reports whether the property is now watched.
func (in *Inspector) Toggle(ctxObj, owner registry.Handle, property string) (bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	for id, w := range in.watches {
		if w.owner == owner && w.Property == property {
			delete(in.watches, id)
			return false, nil
		}
	}

	if !in.opts.Registry.Alive(ctxObj) {
		return false, fmt.Errorf("%w: context %s", ErrDeadObject, ctxObj)
	}
	obj, ok := in.opts.Registry.Resolve(owner)
	if !ok {
		return false, fmt.Errorf("%w: owner %s", ErrDeadObject, owner)
	}
	if _, ok := lookupProperty(obj, property); !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownProperty, property)
	}

	in.nextID++
	in.watches[in.nextID] = &Watch{
		ID:       in.nextID,
		Context:  ctxObj.String(),
		Owner:    owner.String(),
		Property: property,
		ctx:      ctxObj,
		owner:    owner,
	}
	return true, nil
}

// Watches returns a copy of the active watches ordered by id.
func (in *Inspector) Watches() []Watch {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Watch, 0, len(in.watches))
	for _, w := range in.watches {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PropertyGroup lists the properties of one object.
type PropertyGroup struct {
	Owner      string   `json:"owner"`
	Name       string   `json:"name"`
	Properties []string `json:"properties"`
}

// Properties lists the exported properties of owner whose name contains filter.
// Components are listed too when includeComponents is set or filter is not empty.
func (in *Inspector) Properties(owner registry.Handle, filter string, includeComponents bool) ([]PropertyGroup, error) {
	obj, ok := in.opts.Registry.Resolve(owner)
	if !ok {
		return nil, fmt.Errorf("%w: owner %s", ErrDeadObject, owner)
	}

	groups := []PropertyGroup{in.group(owner, obj, filter)}
	if co, ok := obj.(ComponentOwner); ok && (includeComponents || filter != "") {
		for _, h := range co.Components() {
			if comp, ok := in.opts.Registry.Resolve(h); ok {
				groups = append(groups, in.group(h, comp, filter))
			}
		}
	}
	return groups, nil
}

func (in *Inspector) group(h registry.Handle, obj any, filter string) PropertyGroup {
	g := PropertyGroup{Owner: h.String(), Name: in.opts.Registry.Name(h)}
	for _, p := range valuefmt.Properties(obj) {
		if filter == "" || strings.Contains(p.Name, filter) {
			g.Properties = append(g.Properties, p.Name)
		}
	}
	return g
}

type emission struct {
	caller, source, property, value string
}

// Tick polls every watch that is due at now and returns the number of records emitted.
// Both handles are re-validated first; a watch whose context or owner died is dropped.
func (in *Inspector) Tick(now time.Time) int {
	var out []emission

	in.mu.Lock()
	for id, w := range in.watches {
		if now.Before(w.due) {
			continue
		}
		w.due = now.Add(in.opts.RefreshInterval)

		e, alive := in.poll(w)
		if !alive {
			delete(in.watches, id)
			continue
		}
		if e != nil {
			out = append(out, *e)
		}
	}
	in.mu.Unlock()

	for _, e := range out {
		in.emit(e)
	}
	return len(out)
}

// poll reads the watched value. Callers hold in.mu.
func (in *Inspector) poll(w *Watch) (*emission, bool) {
	reg := in.opts.Registry
	if !reg.Alive(w.ctx) {
		return nil, false
	}
	obj, ok := reg.Resolve(w.owner)
	if !ok {
		return nil, false
	}
	prop, ok := lookupProperty(obj, w.Property)
	if !ok {
		return nil, false
	}

	value := strings.TrimLeft(valuefmt.Format(prop), " \t\r\n")
	if w.polled && value == w.Last && !in.opts.LogEveryPoll {
		return nil, true
	}
	w.polled = true
	w.Last = value

	net, _ := reg.Net(w.ctx)
	contextName := CallerName(reg.Name(w.ctx))
	if w.owner != w.ctx {
		contextName = reg.Name(w.owner)
	}
	return &emission{
		caller:   net.Tag() + "[" + contextName + "]",
		source:   fmt.Sprintf("%s_%d", reg.Name(w.ctx), w.ID),
		property: w.Property,
		value:    value,
	}, true
}

func (in *Inspector) emit(e emission) {
	message := "[" + e.property + "] " + e.value
	in.opts.Logger.Info(e.caller+" "+message, "source", e.source)
	if in.opts.Sink == nil {
		return
	}
	if err := in.opts.Sink.Log(in.opts.Instance, e.caller, e.source, model.LevelInfo, message); err != nil {
		in.opts.Logger.Error(err, "failed to log property", "property", e.property)
	}
}

// Run calls Tick every RefreshInterval until ctx is done.
func (in *Inspector) Run(ctx context.Context) {
	ticker := time.NewTicker(in.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			in.Tick(now)
		}
	}
}

// dropHandle removes every watch bound to h.
func (in *Inspector) dropHandle(h registry.Handle) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for id, w := range in.watches {
		if w.ctx == h || w.owner == h {
			delete(in.watches, id)
		}
	}
}

// CallerName applies the display convention for generated class instance names.
func CallerName(name string) string {
	return strings.ReplaceAll(name, "_C_", " #")
}

func lookupProperty(obj any, name string) (valuefmt.Value, bool) {
	for _, p := range valuefmt.Properties(obj) {
		if p.Name == name {
			return p, true
		}
	}
	return valuefmt.Value{}, false
}
