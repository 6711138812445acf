package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coffersTech/als/internal/inspector"
	"github.com/coffersTech/als/internal/registry"
)

type toggleRequest struct {
	Context  string `json:"context"`
	Owner    string `json:"owner"`
	Property string `json:"property"`
}

func (s *ViewerServer) handleWatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Inspector.Watches())
}

// handleToggle processes POST /api/inspector/toggle. An empty owner watches the context itself.
func (s *ViewerServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Owner == "" {
		req.Owner = req.Context
	}
	ctxObj, err := registry.ParseHandle(req.Context)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	owner, err := registry.ParseHandle(req.Owner)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	watched, err := s.opts.Inspector.Toggle(ctxObj, owner, req.Property)
	if err != nil {
		writeInspectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"watched": watched})
}

func (s *ViewerServer) handleProperties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	owner, err := registry.ParseHandle(q.Get("owner"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	groups, err := s.opts.Inspector.Properties(owner, q.Get("filter"), boolParam(r, "components"))
	if err != nil {
		writeInspectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func writeInspectorError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, inspector.ErrDeadObject):
		status = http.StatusGone
	case errors.Is(err, inspector.ErrUnknownProperty):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
