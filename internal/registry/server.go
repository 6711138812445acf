package registry

import (
	"encoding/json"
	"net/http"

	"github.com/coffersTech/als/internal/model"
)

// Server handles registry-related HTTP requests.
type Server struct {
	store *Store
}

// NewServer creates a new registry server.
func NewServer(store *Store) *Server {
	return &Server{
		store: store,
	}
}

// RemoteObject stands in for an object owned by a remote host process.
type RemoteObject struct {
	Name string
}

// DisplayName implements valuefmt.Named.
func (o *RemoteObject) DisplayName() string { return o.Name }

type registerRequest struct {
	Name string        `json:"name"`
	Net  model.NetRole `json:"net"`
}

type handleRequest struct {
	Handle string `json:"handle"`
}

type handleResponse struct {
	Handle string `json:"handle"`
	Alive  bool   `json:"alive"`
}

// HandleRegister registers a remote object.
// POST /api/registry/objects
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	h := s.store.Register(&RemoteObject{Name: req.Name}, req.Name, req.Net)
	writeJSON(w, http.StatusCreated, handleResponse{Handle: h.String(), Alive: true})
}

// HandleKeepAlive refreshes a handle so the cleanup loop keeps it.
// POST /api/registry/keepalive
func (s *Server) HandleKeepAlive(w http.ResponseWriter, r *http.Request) {
	s.withHandle(w, r, true, func(h Handle) handleResponse {
		return handleResponse{Handle: h.String(), Alive: s.store.KeepAlive(h)}
	})
}

// HandleDestroy invalidates a handle.
// POST /api/registry/destroy
func (s *Server) HandleDestroy(w http.ResponseWriter, r *http.Request) {
	s.withHandle(w, r, false, func(h Handle) handleResponse {
		s.store.Destroy(h)
		return handleResponse{Handle: h.String(), Alive: false}
	})
}

// withHandle decodes a handle request; goneIfDead answers 410 when fn reports a dead handle.
func (s *Server) withHandle(w http.ResponseWriter, r *http.Request, goneIfDead bool, fn func(Handle) handleResponse) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req handleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	h, err := ParseHandle(req.Handle)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := fn(h)
	status := http.StatusOK
	if goneIfDead && !resp.Alive {
		status = http.StatusGone
	}
	writeJSON(w, status, resp)
}

// HandleListObjects returns all live objects.
// GET /api/registry/objects
func (s *Server) HandleListObjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.store.ListObjects())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
