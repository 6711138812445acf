package inspector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/registry"
	"github.com/coffersTech/als/internal/valuefmt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type logged struct {
	instance, caller, source string
	level                    model.Level
	message                  string
}

type memSink struct {
	mu   sync.Mutex
	recs []logged
}

func (s *memSink) Log(instance, caller, sourceID string, level model.Level, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, logged{instance, caller, sourceID, level, message})
	return nil
}

func (s *memSink) all() []logged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]logged(nil), s.recs...)
}

type health struct {
	Current float64
	Max     float64
}

type hero struct {
	Health   float64
	Position valuefmt.Vector
	Name     string
	comps    []registry.Handle
}

func (h *hero) Components() []registry.Handle { return h.comps }

type fixture struct {
	reg   *registry.Store
	sink  *memSink
	in    *Inspector
	hero  *hero
	heroH registry.Handle
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{reg: registry.NewStore(), sink: &memSink{}}
	f.hero = &hero{Health: 100, Name: "Hero"}
	f.heroH = f.reg.Register(f.hero, "BP_Hero_C_0", model.Client)

	opts := Options{
		Registry:        f.reg,
		Sink:            f.sink,
		Instance:        "Demo_Client (1)",
		Logger:          testr.New(t),
		RefreshInterval: 10 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.in = New(opts)
	return f
}

func TestToggleSubscribesAndUnsubscribes(t *testing.T) {
	f := newFixture(t)

	on, err := f.in.Toggle(f.heroH, f.heroH, "Health")
	require.NoError(t, err)
	assert.True(t, on)
	require.Len(t, f.in.Watches(), 1)

	on, err = f.in.Toggle(f.heroH, f.heroH, "Health")
	require.NoError(t, err)
	assert.False(t, on)
	assert.Empty(t, f.in.Watches())

	_, err = f.in.Toggle(f.heroH, f.heroH, "Mana")
	assert.ErrorIs(t, err, ErrUnknownProperty)

	_, err = f.in.Toggle(f.heroH, registry.Handle{}, "Health")
	assert.ErrorIs(t, err, ErrDeadObject)
}

func TestTickLogsOnlyChanges(t *testing.T) {
	f := newFixture(t)
	_, err := f.in.Toggle(f.heroH, f.heroH, "Health")
	require.NoError(t, err)

	now := time.Now()
	assert.Equal(t, 1, f.in.Tick(now))
	assert.Equal(t, 0, f.in.Tick(now.Add(20*time.Millisecond)))

	f.hero.Health = 75.5
	// Not yet due.
	assert.Equal(t, 0, f.in.Tick(now.Add(25*time.Millisecond)))
	assert.Equal(t, 1, f.in.Tick(now.Add(40*time.Millisecond)))

	recs := f.sink.all()
	require.Len(t, recs, 2)
	assert.Equal(t, logged{
		instance: "Demo_Client (1)",
		caller:   "[Client] [BP_Hero #0]",
		source:   "BP_Hero_C_0_1",
		level:    model.LevelInfo,
		message:  "[Health] 100.0",
	}, recs[0])
	assert.Equal(t, "[Health] 75.5", recs[1].message)
	assert.Equal(t, "75.5", f.in.Watches()[0].Last)
}

func TestTickLogEveryPoll(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.LogEveryPoll = true })
	_, err := f.in.Toggle(f.heroH, f.heroH, "Position")
	require.NoError(t, err)

	now := time.Now()
	f.in.Tick(now)
	f.in.Tick(now.Add(time.Second))
	recs := f.sink.all()
	require.Len(t, recs, 2)
	assert.Equal(t, "[Position] X: 0.00, Y: 0.00, Z: 0.00", recs[1].message)
}

func TestComponentWatchUsesOwnerName(t *testing.T) {
	f := newFixture(t)
	comp := &health{Current: 5, Max: 10}
	compH := f.reg.Register(comp, "HealthComponent", model.Client)
	f.hero.comps = []registry.Handle{compH}

	groups, err := f.in.Properties(f.heroH, "", true)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"Health", "Position", "Name"}, groups[0].Properties)
	assert.Equal(t, "HealthComponent", groups[1].Name)
	assert.Equal(t, []string{"Current", "Max"}, groups[1].Properties)

	groups, err = f.in.Properties(f.heroH, "", false)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	groups, err = f.in.Properties(f.heroH, "Max", false)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Empty(t, groups[0].Properties)
	assert.Equal(t, []string{"Max"}, groups[1].Properties)

	_, err = f.in.Toggle(f.heroH, compH, "Max")
	require.NoError(t, err)
	f.in.Tick(time.Now())
	recs := f.sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "[Client] [HealthComponent]", recs[0].caller)
	assert.Equal(t, "[Max] 10.0", recs[0].message)
}

func TestDestroyedContextDropsWatches(t *testing.T) {
	f := newFixture(t)
	other := f.reg.Register(&hero{}, "Other", model.Standalone)
	_, err := f.in.Toggle(f.heroH, f.heroH, "Health")
	require.NoError(t, err)
	_, err = f.in.Toggle(other, other, "Health")
	require.NoError(t, err)

	f.reg.Destroy(f.heroH)
	watches := f.in.Watches()
	require.Len(t, watches, 1)
	assert.Equal(t, other.String(), watches[0].Owner)
}

func TestTickDropsWatchOfPrunedOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.in.Toggle(f.heroH, f.heroH, "Health")
	require.NoError(t, err)

	// Simulate a handle that went stale without a notification reaching the inspector.
	f.in.mu.Lock()
	for _, w := range f.in.watches {
		w.owner = registry.Handle{Index: 42, Generation: 1}
	}
	f.in.mu.Unlock()

	assert.Equal(t, 0, f.in.Tick(time.Now()))
	assert.Empty(t, f.in.Watches())
	assert.Empty(t, f.sink.all())
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.in.Toggle(f.heroH, f.heroH, "Name")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.in.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(f.sink.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, "[Name] Hero", f.sink.all()[0].message)
}

func TestCallerName(t *testing.T) {
	assert.Equal(t, "BP_Hero #0", CallerName("BP_Hero_C_0"))
	assert.Equal(t, "GameMode", CallerName("GameMode"))
}
