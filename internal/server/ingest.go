package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/printer"
	"github.com/coffersTech/als/internal/storage"
)

// maxIngestBody bounds one ingest request.
const maxIngestBody = 32 << 20

// handleIngest processes POST /api/ingest?instance=. The body is one record
// object or an array of them; counters are assigned by the store.
func (s *ViewerServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	instance := r.URL.Query().Get("instance")
	if instance == "" {
		http.Error(w, "instance is required", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		s.logger.Error(err, "Failed to read body")
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	var values []*fastjson.Value
	switch v.Type() {
	case fastjson.TypeArray:
		values, _ = v.Array()
	case fastjson.TypeObject:
		values = []*fastjson.Value{v}
	default:
		http.Error(w, "Invalid JSON: expected an object or an array", http.StatusBadRequest)
		return
	}

	records := make([]model.Record, 0, len(values))
	for i, val := range values {
		rec, err := recordFromJSON(val)
		if err != nil {
			http.Error(w, fmt.Sprintf("record %d: %v", i, err), http.StatusBadRequest)
			return
		}
		records = append(records, rec)
	}

	for i, rec := range records {
		if err := s.store.Append(instance, rec); err != nil {
			s.ingestRate.Add(i)
			s.writeError(w, err)
			return
		}
	}
	s.ingestRate.Add(len(records))
	writeJSON(w, http.StatusOK, map[string]int{"accepted": len(records)})
}

func recordFromJSON(v *fastjson.Value) (model.Record, error) {
	if v.Type() != fastjson.TypeObject {
		return model.Record{}, fmt.Errorf("expected an object")
	}
	rec := model.Record{
		SessionID: string(v.GetStringBytes("session_id")),
		Caller:    string(v.GetStringBytes("caller")),
		SourceID:  string(v.GetStringBytes("source_id")),
		Message:   string(v.GetStringBytes("message")),
	}
	if rec.SourceID == "" {
		rec.SourceID = string(v.GetStringBytes("source"))
	}
	if rec.Message == "" {
		rec.Message = string(v.GetStringBytes("msg"))
	}
	if rec.Caller == "" {
		rec.Caller = printer.NoContext
	}
	if rec.SourceID == "" {
		rec.SourceID = "unknown:0"
	}
	rec.Level, _ = model.ParseLevel(string(v.GetStringBytes("level")))

	if ts := v.Get("timestamp"); ts != nil {
		switch ts.Type() {
		case fastjson.TypeString:
			t, err := time.Parse(time.RFC3339Nano, string(ts.GetStringBytes()))
			if err != nil {
				return model.Record{}, fmt.Errorf("timestamp: %w", err)
			}
			if !t.IsZero() {
				rec.Timestamp = t.Local()
			}
		case fastjson.TypeNumber:
			rec.Timestamp = time.UnixMilli(ts.GetInt64())
		}
	}
	return rec, nil
}

type rotationFailure struct {
	Path      string `json:"path"`
	Oversized bool   `json:"oversized"`
	Error     string `json:"error"`
}

type rotationResponse struct {
	Archived []string          `json:"archived"`
	Failures []rotationFailure `json:"failures"`
}

// handleRotate processes POST /api/rotate.
func (s *ViewerServer) handleRotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	age, size := s.opts.MaxFileAgeDays, s.opts.MaxParseSizeMiB
	if age <= 0 {
		age = 3
	}
	if size <= 0 {
		size = storage.DefaultMaxParseMiB
	}

	report := s.store.Rotate(age, size)
	resp := rotationResponse{Archived: report.Archived, Failures: []rotationFailure{}}
	if resp.Archived == nil {
		resp.Archived = []string{}
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, rotationFailure{Path: f.Path, Oversized: f.Oversized, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}
