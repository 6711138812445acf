package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/als/internal/engine"
	"github.com/coffersTech/als/internal/inspector"
	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/registry"
	"github.com/coffersTech/als/internal/session"
	"github.com/coffersTech/als/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testInstance = "Demo_Client (1)"

var baseTime = time.Date(2025, 3, 14, 9, 26, 50, 0, time.Local)

type fixture struct {
	store *storage.Store
	qe    *engine.QueryEngine
	srv   *ViewerServer
	h     http.Handler
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	store, err := storage.Open(storage.Options{
		Dir:     t.TempDir(),
		Project: "Demo",
		Logger:  testr.New(t),
		Session: session.NewTracker(session.FormatTime, nil),
	})
	require.NoError(t, err)
	qe := engine.NewQueryEngine(store, testr.New(t))

	opts := Options{Engine: qe, Logger: testr.New(t)}
	for _, m := range mutate {
		m(&opts)
	}
	srv := New(opts)
	return &fixture{store: store, qe: qe, srv: srv, h: srv.Handler()}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	add := func(counter uint64, sess, caller string, level model.Level, msg string, offset int) {
		require.NoError(t, f.store.Append(testInstance, model.Record{
			Counter:   counter,
			Timestamp: baseTime.Add(time.Duration(offset) * time.Second),
			SessionID: sess,
			Caller:    caller,
			SourceID:  "pawn.go:10",
			Level:     level,
			Message:   msg,
		}))
	}
	add(1, "S1", "[Client] [BP_Hero #0]", model.LevelInfo, "spawned", 0)
	add(2, "S1", "[Client] [BP_Hero #0]", model.LevelWarning, "low ammo", 5)
	add(3, "S1", "[GameMode]", model.LevelError, "no spawn point", 10)
	add(4, "S2", "[GameMode]", model.LevelInfo, "restarted", 100)
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

type logsBody struct {
	Viewer  string         `json:"viewer"`
	Records []model.Record `json:"records"`
	Warning string         `json:"warning"`
}

const inst = "instance=Demo_Client+%281%29"

func TestCatalogRoutes(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w := f.do(t, "GET", "/api/instances", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]storage.InstanceInfo](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, testInstance, list[0].Name)

	w = f.do(t, "GET", "/api/sessions?"+inst, "")
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decode[struct {
		Sessions []string `json:"sessions"`
		Latest   string   `json:"latest"`
	}](t, w)
	assert.Equal(t, []string{"S1", "S2"}, sessions.Sessions)
	assert.Equal(t, "S2", sessions.Latest)

	w = f.do(t, "GET", "/api/contexts?"+inst+"&session=S1", "")
	require.Equal(t, http.StatusOK, w.Code)
	contexts := decode[[]engine.ContextEntry](t, w)
	require.Len(t, contexts, 2)
	assert.Equal(t, "[GameMode]", contexts[0].Raw)
	assert.Equal(t, "Client", contexts[1].Network)

	w = f.do(t, "GET", "/api/contexts?"+inst+"&session=S9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogsRouteKeepsOnlyNamedViewers(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ViewerIdleTimeout = time.Minute })
	f.seed(t)
	now := baseTime
	f.srv.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		w := f.do(t, "GET", "/api/logs?"+inst+"&session=S1", "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Zero(t, f.srv.viewerCount())

	for _, id := range []string{"a", "b", "a"} {
		w := f.do(t, "GET", "/api/logs?"+inst+"&session=S1&viewer="+id, "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 2, f.srv.viewerCount())

	now = now.Add(2 * time.Minute)
	w := f.do(t, "GET", "/api/logs?"+inst+"&session=S1&viewer=c", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.srv.viewerCount(), "idle viewers are dropped")
}

func TestLogsRoute(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w := f.do(t, "GET", "/api/logs?"+inst+"&session=S1&desc=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[logsBody](t, w)
	_, err := uuid.Parse(body.Viewer)
	assert.NoError(t, err)
	assert.Equal(t, body.Viewer, w.Header().Get(ViewerHeader))
	require.Len(t, body.Records, 3)
	assert.Equal(t, uint64(3), body.Records[0].Counter)

	w = f.do(t, "GET", "/api/logs?"+inst+"&session=S1&level=Warning&viewer=v1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[logsBody](t, w)
	assert.Equal(t, "v1", body.Viewer)
	require.Len(t, body.Records, 1)
	assert.Equal(t, "low ammo", body.Records[0].Message)

	w = f.do(t, "GET", "/api/logs?"+inst, "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[logsBody](t, w)
	require.Len(t, body.Records, 1)
	assert.Equal(t, "S2", body.Records[0].SessionID)

	w = f.do(t, "GET", "/api/logs?"+inst+"&session=S1&q=source~pawn.go+AND+msg~spawn", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[logsBody](t, w)
	require.Len(t, body.Records, 2)
}

func TestLogsErrors(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown level", "/api/logs?" + inst + "&session=S1&level=Verbose", http.StatusBadRequest},
		{"bad query", "/api/logs?" + inst + "&session=S1&q=%28level:Error", http.StatusBadRequest},
		{"missing instance", "/api/logs?instance=Nobody&session=S1", http.StatusNotFound},
		{"invalid instance", "/api/logs?instance=..%2Fetc&session=S1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, "GET", tt.target, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, w)["error"])
		})
	}

	w := f.do(t, "POST", "/api/logs?"+inst, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestWriteErrorStatus(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.srv.writeError(w, engine.ErrCancelled)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "superseded")

	w = httptest.NewRecorder()
	f.srv.writeError(w, &storage.SizeWarning{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSizeGate(t *testing.T) {
	f := newFixture(t)
	f.qe.MaxParseMiB = 1
	big := strings.Repeat("x", 1<<20+1)
	require.NoError(t, os.WriteFile(f.store.Path(testInstance), []byte(big), 0o644))

	w := f.do(t, "GET", "/api/sessions?"+inst, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, "GET", "/api/sessions?"+inst+"&force=true", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngest(t *testing.T) {
	f := newFixture(t)

	body := `[
		{"timestamp":"2025-03-14T09:26:50Z","session_id":"R1","caller":"[Client] [Bot #1]","source_id":"bot.go:3","level":"Error","message":"stuck"},
		{"session_id":"R1","source":"bot.go:4","level":"warning","msg":"moving"}
	]`
	w := f.do(t, "POST", "/api/ingest?"+inst, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[map[string]int](t, w)["accepted"])

	w = f.do(t, "POST", "/api/ingest?"+inst, `{"session_id":"R1","timestamp":1741944420000,"message":"single"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, "GET", "/api/logs?"+inst+"&session=R1", "")
	require.Equal(t, http.StatusOK, w.Code)
	recs := decode[logsBody](t, w).Records
	require.Len(t, recs, 3)
	assert.Equal(t, "[Client] [Bot #1]", recs[0].Caller)
	assert.Equal(t, model.LevelError, recs[0].Level)
	assert.Equal(t, "bot.go:4", recs[1].SourceID)
	assert.Equal(t, model.LevelWarning, recs[1].Level)
	assert.Equal(t, "moving", recs[1].Message)
	assert.Equal(t, "[NoContext]", recs[2].Caller)
	assert.True(t, recs[0].Counter < recs[1].Counter && recs[1].Counter < recs[2].Counter)

	w = f.do(t, "GET", "/api/stats?"+inst+"&session=R1", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[statsResponse](t, w)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, int64(3), stats.IngestTotal)
}

func TestIngestRejects(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, "GET", "/api/ingest?"+inst, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/ingest", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/ingest?"+inst, `{bad`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/ingest?"+inst, `"text"`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/ingest?"+inst, `[1]`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/ingest?"+inst, `{"timestamp":"yesterday"}`).Code)
}

func TestStatsHistogramContext(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w := f.do(t, "GET", "/api/stats?"+inst+"&session=S1", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[statsResponse](t, w)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.LevelDist["Error"])
	assert.Equal(t, 2, stats.Contexts)

	w = f.do(t, "GET", "/api/histogram?"+inst+"&session=S1&interval=60", "")
	require.Equal(t, http.StatusOK, w.Code)
	points := decode[[]engine.HistogramPoint](t, w)
	total := 0
	for _, p := range points {
		total += p.Count
	}
	assert.Equal(t, 3, total)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/histogram?"+inst+"&interval=x", "").Code)

	w = f.do(t, "GET", "/api/context?"+inst+"&session=S1&counter=2&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	ctx := decode[engine.ContextResult](t, w)
	require.NotNil(t, ctx.Anchor)
	assert.Equal(t, uint64(2), ctx.Anchor.Counter)
	assert.Len(t, ctx.Pre, 1)
	assert.Len(t, ctx.Post, 1)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/context?"+inst, "").Code)
}

func TestRotate(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(f.store.Path(testInstance), old, old))

	w := f.do(t, "POST", "/api/rotate", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[rotationResponse](t, w)
	assert.Len(t, resp.Archived, 1)
	assert.Empty(t, resp.Failures)

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/logs?"+inst+"&session=S1", "").Code)

	w = f.do(t, "GET", "/api/instances?archived=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]storage.InstanceInfo](t, w)
	require.Len(t, list, 1)
	require.True(t, list[0].Archived)
	assert.True(t, strings.HasPrefix(list[0].Name, testInstance+"_"), list[0].Name)

	archived := "/api/logs?instance=" + url.QueryEscape(list[0].Name) + "&session=S1"
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", archived, "").Code)

	f.qe.IncludeArchived = true
	w = f.do(t, "GET", archived, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[logsBody](t, w).Records, 3)
}

func TestAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newFixture(t, func(o *Options) {
		o.User = "als"
		o.PasswordHash = string(hash)
	})
	f.seed(t)

	w := f.do(t, "GET", "/api/instances", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest("GET", "/api/instances", nil)
	req.SetBasicAuth("als", "wrong")
	w = httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("GET", "/api/instances", nil)
	req.SetBasicAuth("als", "secret")
	w = httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

type hero struct {
	Health float64
	Name   string
}

func TestInspectorRoutes(t *testing.T) {
	reg := registry.NewStore()
	var in *inspector.Inspector
	f := newFixture(t, func(o *Options) {
		o.Registry = reg
		in = inspector.New(inspector.Options{
			Registry: reg,
			Sink:     o.Engine.Store(),
			Instance: testInstance,
			Logger:   testr.New(t),
		})
		o.Inspector = in
	})
	h := reg.Register(&hero{Health: 80, Name: "Hero"}, "BP_Hero_C_0", model.Client)

	w := f.do(t, "GET", "/api/inspector/properties?owner="+h.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	groups := decode[[]inspector.PropertyGroup](t, w)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"Health", "Name"}, groups[0].Properties)

	w = f.do(t, "POST", "/api/inspector/toggle", `{"context":"`+h.String()+`","property":"Health"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[map[string]bool](t, w)["watched"])

	w = f.do(t, "GET", "/api/inspector/watches", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]inspector.Watch](t, w), 1)

	require.Equal(t, 1, in.Tick(time.Now()))
	w = f.do(t, "GET", "/api/logs?"+inst, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recs := decode[logsBody](t, w).Records
	require.Len(t, recs, 1)
	assert.Equal(t, "[Health] 80.0", recs[0].Message)

	assert.Equal(t, http.StatusNotFound,
		f.do(t, "POST", "/api/inspector/toggle", `{"context":"`+h.String()+`","property":"Mana"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, "POST", "/api/inspector/toggle", `{"context":"nope","property":"Health"}`).Code)

	reg.Destroy(h)
	assert.Equal(t, http.StatusGone,
		f.do(t, "POST", "/api/inspector/toggle", `{"context":"`+h.String()+`","property":"Health"}`).Code)

	w = f.do(t, "POST", "/api/registry/objects", `{"name":"BP_Remote_C_1","net":2}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	w = f.do(t, "GET", "/api/registry/objects", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]registry.Object](t, w), 1)
}
