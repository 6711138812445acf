// Package registry hands out generation-counted handles to host objects
// whose lifetime the logging core does not control.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coffersTech/als/internal/model"
)

// NullObject is the display name of a handle that no longer resolves.
const NullObject = "null_object"

var ErrBadHandle = errors.New("malformed handle")

// Handle is a weak reference to a registered object.
// The zero Handle never resolves.
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.Generation == 0 }

// String renders h as "index:generation".
func (h Handle) String() string { return fmt.Sprintf("%d:%d", h.Index, h.Generation) }

// ParseHandle parses the String form of a Handle.
func ParseHandle(s string) (Handle, error) {
	var h Handle
	if _, err := fmt.Sscanf(s, "%d:%d", &h.Index, &h.Generation); err != nil {
		return Handle{}, fmt.Errorf("%w: %q", ErrBadHandle, s)
	}
	return h, nil
}

// Object describes a live registered object.
type Object struct {
	Handle       string        `json:"handle"`
	Name         string        `json:"name"`
	Net          model.NetRole `json:"net"`
	RegisteredAt int64         `json:"registered_at"`
	LastSeenAt   int64         `json:"last_seen_at"`
}

type slot struct {
	gen      uint32
	live     bool
	obj      any
	name     string
	net      model.NetRole
	regAt    time.Time
	lastSeen time.Time
}

// Store handles the storage of registered objects.
type Store struct {
	mu        sync.RWMutex
	slots     []slot
	free      []uint32
	listeners []func(Handle)
	now       func() time.Time
}

// NewStore creates a new registry store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Register adds obj and returns its handle. name is the display name used in caller labels.
func (s *Store) Register(obj any, name string, net model.NetRole) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slot{gen: 1})
	}

	sl := &s.slots[idx]
	sl.live = true
	sl.obj = obj
	sl.name = name
	sl.net = net
	sl.regAt = now
	sl.lastSeen = now
	return Handle{Index: idx, Generation: sl.gen}
}

// lookup returns the live slot of h. Callers hold s.mu.
func (s *Store) lookup(h Handle) (*slot, bool) {
	if h.IsZero() || int(h.Index) >= len(s.slots) {
		return nil, false
	}
	sl := &s.slots[h.Index]
	if !sl.live || sl.gen != h.Generation {
		return nil, false
	}
	return sl, true
}

// Resolve returns the object behind h, or false once it was destroyed.
func (s *Store) Resolve(h Handle) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.lookup(h)
	if !ok {
		return nil, false
	}
	return sl.obj, true
}

// Alive reports whether h still resolves.
func (s *Store) Alive(h Handle) bool {
	_, ok := s.Resolve(h)
	return ok
}

// Name returns the display name of h, or NullObject when it is dead.
func (s *Store) Name(h Handle) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.lookup(h)
	if !ok {
		return NullObject
	}
	return sl.name
}

// Net returns the network role recorded for h.
func (s *Store) Net(h Handle) (model.NetRole, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.lookup(h)
	if !ok {
		return model.Standalone, false
	}
	return sl.net, true
}

// Destroy invalidates h and notifies OnDestroyed listeners.
// It reports false if h was already dead.
func (s *Store) Destroy(h Handle) bool {
	s.mu.Lock()
	if _, ok := s.lookup(h); !ok {
		s.mu.Unlock()
		return false
	}
	s.release(h.Index)
	listeners := append([]func(Handle){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(h)
	}
	return true
}

// release frees a slot and bumps its generation. Callers hold s.mu.
func (s *Store) release(idx uint32) {
	sl := &s.slots[idx]
	sl.live = false
	sl.obj = nil
	sl.gen++
	if sl.gen == 0 {
		sl.gen = 1
	}
	s.free = append(s.free, idx)
}

// OnDestroyed registers fn to run after any handle is destroyed or pruned.
// fn runs on the goroutine that destroyed the handle, outside the store lock.
func (s *Store) OnDestroyed(fn func(Handle)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ListObjects returns all live objects.
func (s *Store) ListObjects() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Object, 0, len(s.slots)-len(s.free))
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.live {
			continue
		}
		list = append(list, Object{
			Handle:       Handle{Index: uint32(i), Generation: sl.gen}.String(),
			Name:         sl.name,
			Net:          sl.net,
			RegisteredAt: sl.regAt.Unix(),
			LastSeenAt:   sl.lastSeen.Unix(),
		})
	}
	return list
}

// KeepAlive updates the last seen time of h.
func (s *Store) KeepAlive(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.lookup(h)
	if ok {
		sl.lastSeen = s.now()
	}
	return ok
}

// PruneStale destroys objects that haven't been seen for timeout.
func (s *Store) PruneStale(timeout time.Duration) int {
	s.mu.Lock()
	now := s.now()
	var pruned []Handle
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.live && now.Sub(sl.lastSeen) > timeout {
			pruned = append(pruned, Handle{Index: uint32(i), Generation: sl.gen})
			s.release(uint32(i))
		}
	}
	listeners := append([]func(Handle){}, s.listeners...)
	s.mu.Unlock()

	for _, h := range pruned {
		for _, fn := range listeners {
			fn(h)
		}
	}
	return len(pruned)
}

// StartCleanupLoop starts a background goroutine to prune stale objects.
func (s *Store) StartCleanupLoop(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.PruneStale(timeout)
			case <-ctx.Done():
				return
			}
		}
	}()
}
