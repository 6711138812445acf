package printer

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/als/internal/codec"
	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/registry"
	"github.com/coffersTech/als/internal/session"
	"github.com/coffersTech/als/internal/storage"
)

type shown struct {
	key      string
	duration time.Duration
	color    Color
	text     string
}

type memScreen struct {
	mu    sync.Mutex
	shown []shown
}

func (s *memScreen) Show(key string, d time.Duration, c Color, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, shown{key, d, c, text})
}

type logged struct {
	caller, source string
	level          model.Level
	message        string
}

type memSink struct {
	recs []logged
}

func (s *memSink) Log(instance, caller, sourceID string, level model.Level, message string) error {
	s.recs = append(s.recs, logged{caller, sourceID, level, message})
	return nil
}

type actor struct {
	name string
	net  model.NetRole
}

func (a *actor) DisplayName() string    { return a.name }
func (a *actor) NetRole() model.NetRole { return a.net }

func newPrinter(t *testing.T, mutate ...func(*Options)) (*Printer, *memScreen, *memSink) {
	t.Helper()
	screen, sink := &memScreen{}, &memSink{}
	opts := Options{
		Screen:   screen,
		Sink:     sink,
		Instance: "Demo_Client (1)",
		Logger:   testr.New(t),
		FileLog:  true,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return New(opts), screen, sink
}

func TestLabel(t *testing.T) {
	caller, net := Label(nil)
	assert.Equal(t, NoContext, caller)
	assert.Empty(t, net)

	caller, net = Label(&actor{"BP_Hero_C_0", model.Client})
	assert.Equal(t, "[Client] [BP_Hero #0]", caller)
	assert.Equal(t, "[Client] ", net)

	caller, _ = Label(&actor{"GameMode", model.Standalone})
	assert.Equal(t, "[GameMode]", caller)

	var typedNil *actor
	caller, _ = Label(typedNil)
	assert.Equal(t, NoContext, caller)
}

func TestPrintScreenAndLog(t *testing.T) {
	p, screen, sink := newPrinter(t)
	ctx := &actor{"BP_Hero_C_0", model.ListenServer}

	require.NoError(t, p.Print(p.Preset(PrintWarn), ctx, "pawn.go:12", "Ammo: ", 3))

	require.Len(t, screen.shown, 1)
	assert.Equal(t, shown{"", 5 * time.Second, Yellow, "[Server] Ammo: 3"}, screen.shown[0])
	require.Len(t, sink.recs, 1)
	assert.Equal(t, logged{"[Server] [BP_Hero #0]", "pawn.go:12", model.LevelWarning, "Ammo: 3"}, sink.recs[0])
}

func TestPrintTypedNilContextSkipsFileLog(t *testing.T) {
	p, screen, sink := newPrinter(t)
	var gone *actor
	require.NoError(t, p.Print(p.Preset(PrintInfo), gone, "a.go:1", "orphan"))
	assert.Len(t, screen.shown, 1)
	assert.Empty(t, sink.recs)
}

func TestPrintShowCallerName(t *testing.T) {
	p, screen, _ := newPrinter(t, func(o *Options) { o.ShowCallerName = true })
	require.NoError(t, p.Print(p.Preset(PrintInfo), &actor{"Door_C_2", model.Client}, "door.go:1", "open"))
	require.Len(t, screen.shown, 1)
	assert.Equal(t, "[Client] [Door #2] open", screen.shown[0].text)
}

func TestPrintModes(t *testing.T) {
	ctx := &actor{"Hero", model.Standalone}

	t.Run("log only skips screen", func(t *testing.T) {
		p, screen, sink := newPrinter(t)
		require.NoError(t, p.Print(p.Preset(LogError), ctx, "a.go:1", "boom"))
		assert.Empty(t, screen.shown)
		require.Len(t, sink.recs, 1)
		assert.Equal(t, model.LevelError, sink.recs[0].level)
	})

	t.Run("screen only still writes the file log", func(t *testing.T) {
		p, screen, sink := newPrinter(t)
		cfg := Config{Key: "hp", Duration: time.Second, Color: Green, Mode: ScreenOnly}
		require.NoError(t, p.Print(cfg, ctx, "a.go:2", "hp"))
		assert.Len(t, screen.shown, 1)
		assert.Len(t, sink.recs, 1)
	})

	t.Run("no context skips the file log", func(t *testing.T) {
		p, screen, sink := newPrinter(t)
		require.NoError(t, p.Print(p.Preset(PrintInfo), nil, "a.go:3", "hello"))
		require.Len(t, screen.shown, 1)
		assert.Equal(t, "hello", screen.shown[0].text)
		assert.Empty(t, sink.recs)
	})

	t.Run("file log disabled", func(t *testing.T) {
		p, _, sink := newPrinter(t, func(o *Options) { o.FileLog = false })
		require.NoError(t, p.Print(p.Preset(LogInfo), ctx, "a.go:4", "x"))
		assert.Empty(t, sink.recs)
	})
}

func TestTaskUniqueOnly(t *testing.T) {
	p, screen, sink := newPrinter(t, func(o *Options) { o.UniqueOnly = true })
	ctx := &actor{"AIController", model.Standalone}
	cfg := p.Preset(PrintInfo)
	src := "BTBB_Enemy::7"

	require.NoError(t, p.Task(cfg, ctx, src, "Patrol"))
	require.NoError(t, p.Task(cfg, ctx, src, "Patrol"))
	require.NoError(t, p.Task(cfg, ctx, src, "Chase"))
	require.NoError(t, p.Task(cfg, ctx, "BTBB_Enemy::8", "Chase"))

	assert.Len(t, screen.shown, 4)
	var msgs []string
	for _, r := range sink.recs {
		msgs = append(msgs, r.source+"="+r.message)
	}
	assert.Equal(t, []string{"BTBB_Enemy::7=Patrol", "BTBB_Enemy::7=Chase", "BTBB_Enemy::8=Chase"}, msgs)

	p.Forget(src)
	require.NoError(t, p.Task(cfg, ctx, src, "Chase"))
	assert.Len(t, sink.recs, 4)
}

func TestTaskWithoutUniqueOnly(t *testing.T) {
	p, _, sink := newPrinter(t)
	ctx := &actor{"AIController", model.Standalone}
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Task(p.Preset(LogInfo), ctx, "BTBB::1", "same"))
	}
	assert.Len(t, sink.recs, 3)
}

func TestHelpersCaptureSourceID(t *testing.T) {
	p, _, sink := newPrinter(t)
	ctx := &actor{"Hero", model.Standalone}
	require.NoError(t, p.Info(ctx, "i"))
	require.NoError(t, p.Warn(ctx, "w"))
	require.NoError(t, p.Error(ctx, "e"))
	require.NoError(t, p.Log(Print3D, ctx, "3d"))

	require.Len(t, sink.recs, 4)
	for _, r := range sink.recs {
		assert.True(t, strings.HasPrefix(r.source, "printer_test.go:"), r.source)
	}
	assert.Equal(t, []model.Level{model.LevelInfo, model.LevelWarning, model.LevelError, model.LevelInfo},
		[]model.Level{sink.recs[0].level, sink.recs[1].level, sink.recs[2].level, sink.recs[3].level})
}

func TestPresetOverride(t *testing.T) {
	p, _, _ := newPrinter(t, func(o *Options) {
		o.Presets = map[Preset]Config{PrintInfo: {Duration: time.Second, Color: Orange, Mode: LogOnly}}
	})
	assert.Equal(t, LogOnly, p.Preset(PrintInfo).Mode)
	assert.Equal(t, 7*time.Second, p.Preset(PrintError).Duration)
}

func TestColorText(t *testing.T) {
	var c Color
	require.NoError(t, c.UnmarshalText([]byte("#F39C12")))
	assert.Equal(t, Orange, c)
	assert.Equal(t, "#F39C12", c.String())

	require.NoError(t, c.UnmarshalText([]byte("00FF0080")))
	assert.Equal(t, Color{0, 255, 0, 128}, c)
	assert.Equal(t, "#00FF0080", c.String())

	assert.Error(t, c.UnmarshalText([]byte("#12")))
}

func TestModeAndPresetText(t *testing.T) {
	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("screenandlog")))
	assert.Equal(t, ScreenAndLog, m)
	assert.Error(t, m.UnmarshalText([]byte("both")))

	var pr Preset
	require.NoError(t, pr.UnmarshalText([]byte("LogWarn")))
	assert.Equal(t, LogWarn, pr)
}

func TestRegisteredContext(t *testing.T) {
	reg := registry.NewStore()
	h := reg.Register(&struct{}{}, "BP_Door_C_1", model.Client)

	ctx := Registered(reg, h)
	require.NotNil(t, ctx)
	caller, _ := Label(ctx)
	assert.Equal(t, "[Client] [BP_Door #1]", caller)

	reg.Destroy(h)
	assert.Nil(t, Registered(reg, h))
}

func TestWriterScreen(t *testing.T) {
	var buf bytes.Buffer
	s := &WriterScreen{W: &buf}
	s.Show("k", time.Second, Green, "one")
	s.Show("", time.Second, Red, "two")
	assert.Equal(t, "one\ntwo\n", buf.String())
}

func TestPrintIntoStore(t *testing.T) {
	store, err := storage.Open(storage.Options{
		Dir:     t.TempDir(),
		Project: "Demo",
		Session: session.NewTracker(session.FormatTime, nil),
	})
	require.NoError(t, err)

	p := New(Options{Sink: store, Instance: "Demo_Client (1)", Logger: testr.New(t), FileLog: true})
	require.NoError(t, p.Print(p.Preset(LogWarn), &actor{"BP_Hero_C_0", model.Client}, "pawn.go:9", "low ", 0.5))

	content, err := store.ReadContent("Demo_Client (1)", storage.ReadOptions{})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 1)

	rec, err := codec.Decode(lines[0])
	require.NoError(t, err)
	assert.Equal(t, "[Client] [BP_Hero #0]", rec.Caller)
	assert.Equal(t, "pawn.go:9", rec.SourceID)
	assert.Equal(t, model.LevelWarning, rec.Level)
	assert.Equal(t, "low 0.5", rec.Message)
}
