package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/session"
	"github.com/coffersTech/als/internal/storage"
)

// StoreSink appends records to one instance file of a local store.
type StoreSink struct {
	Store    *storage.Store
	Instance string
}

func (s *StoreSink) Write(_ context.Context, batch []model.Record) error {
	var errs []error
	for _, rec := range batch {
		if err := s.Store.Append(s.Instance, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoteSink posts batches as a JSON array to a viewer server's ingest endpoint.
type RemoteSink struct {
	ServerURL string
	Instance  string
	User      string
	Password  string
	// Session defaults to the process session id.
	Session string
	Client  *http.Client
}

func (s *RemoteSink) Write(ctx context.Context, batch []model.Record) error {
	sess := s.Session
	if sess == "" {
		sess = session.ID()
	}
	out := make([]model.Record, len(batch))
	for i, rec := range batch {
		if rec.SessionID == "" {
			rec.SessionID = sess
		}
		out[i] = rec
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(s.ServerURL, "/") + "/api/ingest?instance=" + url.QueryEscape(s.Instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if s.Password != "" {
		req.SetBasicAuth(s.User, s.Password)
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("ingest: HTTP %d", resp.StatusCode)
	}
	return nil
}
