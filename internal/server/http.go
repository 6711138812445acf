// Package server exposes the log viewer over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/valyala/fastjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/als/internal/engine"
	"github.com/coffersTech/als/internal/inspector"
	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/registry"
	"github.com/coffersTech/als/internal/storage"
)

// ViewerHeader carries the viewer id of a /api/logs request and response.
const ViewerHeader = "X-ALS-Viewer"

// DefaultViewerIdleTimeout is how long a named viewer is kept without requests.
const DefaultViewerIdleTimeout = 10 * time.Minute

// Options configures a ViewerServer.
type Options struct {
	Engine *engine.QueryEngine
	Logger logr.Logger

	// Registry and Inspector enable the object routes when set.
	Registry  *registry.Store
	Inspector *inspector.Inspector

	// User and PasswordHash enable basic auth. PasswordHash is a bcrypt hash.
	User         string
	PasswordHash string

	IncludeArchived bool
	MaxFileAgeDays  int
	MaxParseSizeMiB int

	// ViewerIdleTimeout defaults to DefaultViewerIdleTimeout.
	ViewerIdleTimeout time.Duration
}

// ViewerServer serves viewer queries and log ingestion.
type ViewerServer struct {
	opts   Options
	qe     *engine.QueryEngine
	store  *storage.Store
	logger logr.Logger

	viewersMu sync.Mutex
	viewers   map[string]*viewerEntry
	now       func() time.Time

	srv        *http.Server
	parser     fastjson.ParserPool
	ingestRate *engine.RateMeter
}

type viewerEntry struct {
	v        *engine.Viewer
	lastUsed time.Time
}

func New(opts Options) *ViewerServer {
	if opts.ViewerIdleTimeout <= 0 {
		opts.ViewerIdleTimeout = DefaultViewerIdleTimeout
	}
	return &ViewerServer{
		opts:       opts,
		qe:         opts.Engine,
		store:      opts.Engine.Store(),
		logger:     opts.Logger.WithName("server"),
		viewers:    make(map[string]*viewerEntry),
		now:        time.Now,
		ingestRate: &engine.RateMeter{},
	}
}

// Handler builds the route table.
func (s *ViewerServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/instances", s.handleInstances)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/contexts", s.handleContexts)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/context", s.handleSurrounding)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/histogram", s.handleHistogram)
	mux.HandleFunc("/api/ingest", s.handleIngest)
	mux.HandleFunc("/api/rotate", s.handleRotate)

	if s.opts.Registry != nil {
		rs := registry.NewServer(s.opts.Registry)
		mux.HandleFunc("/api/registry/objects", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				rs.HandleListObjects(w, r)
				return
			}
			rs.HandleRegister(w, r)
		})
		mux.HandleFunc("/api/registry/keepalive", rs.HandleKeepAlive)
		mux.HandleFunc("/api/registry/destroy", rs.HandleDestroy)
	}
	if s.opts.Inspector != nil {
		mux.HandleFunc("/api/inspector/watches", s.handleWatches)
		mux.HandleFunc("/api/inspector/toggle", s.handleToggle)
		mux.HandleFunc("/api/inspector/properties", s.handleProperties)
	}

	return s.AuthMiddleware(mux)
}

// Start runs the HTTP server until Shutdown.
func (s *ViewerServer) Start(ctx context.Context, addr string) error {
	rateCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ingestRate.Start(rateCtx, time.Second)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and cancels outstanding viewer queries.
func (s *ViewerServer) Shutdown(ctx context.Context) error {
	s.viewersMu.Lock()
	for _, e := range s.viewers {
		e.v.Cancel()
	}
	s.viewersMu.Unlock()

	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// AuthMiddleware checks basic auth credentials when a password hash is configured.
func (s *ViewerServer) AuthMiddleware(next http.Handler) http.Handler {
	if s.opts.PasswordHash == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok && user == s.opts.User &&
			bcrypt.CompareHashAndPassword([]byte(s.opts.PasswordHash), []byte(pass)) == nil {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="ALS"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// viewer returns the Viewer registered under id, creating it on first use.
// Viewers idle longer than ViewerIdleTimeout are dropped on the way.
func (s *ViewerServer) viewer(id string) *engine.Viewer {
	s.viewersMu.Lock()
	defer s.viewersMu.Unlock()
	now := s.now()
	for key, e := range s.viewers {
		if key != id && now.Sub(e.lastUsed) > s.opts.ViewerIdleTimeout {
			delete(s.viewers, key)
		}
	}
	e, ok := s.viewers[id]
	if !ok {
		e = &viewerEntry{v: engine.NewViewer(s.qe, nil)}
		s.viewers[id] = e
	}
	e.lastUsed = now
	return e.v
}

// viewerCount returns the number of registered viewers.
func (s *ViewerServer) viewerCount() int {
	s.viewersMu.Lock()
	defer s.viewersMu.Unlock()
	return len(s.viewers)
}

func (s *ViewerServer) handleInstances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	archived := s.opts.IncludeArchived || boolParam(r, "archived")
	list, err := s.store.ListInstances(archived)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *ViewerServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.qe.Sessions(r.URL.Query().Get("instance"), boolParam(r, "force"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"latest":   sessions[len(sessions)-1],
	})
}

func (s *ViewerServer) handleContexts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	instance, force := q.Get("instance"), boolParam(r, "force")
	session := q.Get("session")
	if session == "" {
		latest, err := s.qe.LatestSession(instance, force)
		if err != nil {
			s.writeError(w, err)
			return
		}
		session = latest
	}
	contexts, err := s.qe.Contexts(instance, session, force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contexts)
}

type logsResponse struct {
	Viewer     string `json:"viewer"`
	Generation uint64 `json:"generation"`
	engine.Result
}

// handleLogs processes GET /api/logs. A newer request carrying the same
// viewer id supersedes an outstanding one, which then answers 409.
func (s *ViewerServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("viewer")
	if id == "" {
		id = r.Header.Get(ViewerHeader)
	}
	anonymous := id == ""
	if anonymous {
		id = uuid.NewString()
	}
	w.Header().Set(ViewerHeader, id)

	p, err := s.params(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Anonymous requests have nothing to supersede, so their viewer is not kept.
	var v *engine.Viewer
	if anonymous {
		v = engine.NewViewer(s.qe, nil)
	} else {
		v = s.viewer(id)
	}
	res, err := v.IssueSync(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logsResponse{Viewer: id, Generation: v.Generation(), Result: res})
}

// handleSurrounding processes GET /api/context: the records around one counter.
func (s *ViewerServer) handleSurrounding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	counter, err := strconv.ParseUint(q.Get("counter"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid counter", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	records, ok := s.records(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, engine.Surrounding(records, counter, limit))
}

type statsResponse struct {
	engine.Stats
	IngestRate  float64 `json:"ingest_rate"`
	IngestTotal int64   `json:"ingest_total"`
}

func (s *ViewerServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	top, _ := strconv.Atoi(r.URL.Query().Get("top"))
	records, ok := s.records(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:       engine.ComputeStats(records, top),
		IngestRate:  s.ingestRate.Rate(),
		IngestTotal: s.ingestRate.Total(),
	})
}

// handleHistogram processes GET /api/histogram. interval is in seconds, default 60.
func (s *ViewerServer) handleHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	interval := time.Minute
	if str := r.URL.Query().Get("interval"); str != "" {
		secs, err := strconv.ParseInt(str, 10, 64)
		if err != nil || secs <= 0 {
			http.Error(w, "Invalid interval", http.StatusBadRequest)
			return
		}
		interval = time.Duration(secs) * time.Second
	}
	records, ok := s.records(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, engine.ComputeHistogram(records, interval))
}

// records runs the request's query without the entry limit and writes any error.
func (s *ViewerServer) records(w http.ResponseWriter, r *http.Request) ([]model.Record, bool) {
	p, err := s.params(r)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	p.IgnoreEntryLimit = true
	res, err := s.qe.Run(r.Context(), p, nil)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return res.Records, true
}

// params reads the query parameters. An empty session selects the latest one.
func (s *ViewerServer) params(r *http.Request) (engine.Params, error) {
	q := r.URL.Query()
	p := engine.Params{
		Instance:         q.Get("instance"),
		SessionID:        q.Get("session"),
		Context:          q.Get("context"),
		Message:          q.Get("message"),
		Level:            q.Get("level"),
		Expr:             q.Get("q"),
		Descending:       boolParam(r, "desc"),
		Aggregate:        boolParam(r, "aggregate"),
		IgnoreSizeCheck:  boolParam(r, "force"),
		IgnoreEntryLimit: boolParam(r, "all"),
	}
	if p.SessionID == "" {
		latest, err := s.qe.LatestSession(p.Instance, p.IgnoreSizeCheck)
		if err != nil {
			return p, err
		}
		p.SessionID = latest
	}
	return p, nil
}

// writeError maps engine and storage errors to status codes with the viewer message as body.
func (s *ViewerServer) writeError(w http.ResponseWriter, err error) {
	var sw *storage.SizeWarning
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &sw):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrCancelled):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInvalidQuery), errors.Is(err, storage.ErrInvalidInstance):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrInstanceNotFound), errors.Is(err, storage.ErrNoInstances),
		errors.Is(err, engine.ErrNoSessions), errors.Is(err, engine.ErrNoContexts):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(err, "Request failed")
	}
	writeJSON(w, status, map[string]string{"error": engine.UserMessage(err)})
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
