// Package engine turns instance files into the filtered, optionally aggregated views shown by viewers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/coffersTech/als/internal/codec"
	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/storage"
)

// DefaultMaxListEntries is the result size above which a viewer must confirm before listing.
const DefaultMaxListEntries = 2000

// minChunk keeps tiny files on a single task.
const minChunk = 256

var (
	// ErrCancelled is returned when the query was superseded before completion.
	ErrCancelled = errors.New("query cancelled")
	// ErrInvalidQuery wraps NanoQL parse failures and unknown level names.
	ErrInvalidQuery = errors.New("invalid query syntax")
)

// Params describes one viewer query.
type Params struct {
	Instance  string `json:"instance"`
	SessionID string `json:"session"`
	// Context is the caller label; empty or model.AllContexts matches every caller.
	Context string `json:"context"`
	// Message is a case-sensitive substring filter.
	Message string `json:"message"`
	// Level is a level name; empty or model.AllLevels matches every level.
	Level string `json:"level"`
	// Expr is an optional NanoQL expression applied after the basic filters.
	Expr string `json:"q"`

	Descending bool `json:"descending"`
	Aggregate  bool `json:"aggregate"`

	IgnoreSizeCheck  bool `json:"ignore_size_check"`
	IgnoreEntryLimit bool `json:"ignore_entry_limit"`
}

// Result is the finished, immutable view of one query.
type Result struct {
	Records []model.Record `json:"records"`
	// Warning asks the viewer to confirm before listing a very large result.
	Warning string `json:"warning,omitempty"`
}

// QueryEngine runs viewer queries against a Store.
type QueryEngine struct {
	store  *storage.Store
	logger logr.Logger

	// MaxParseMiB is the size gate passed to the store; zero uses the store default.
	MaxParseMiB int
	// MaxListEntries triggers Result.Warning; zero uses DefaultMaxListEntries.
	MaxListEntries int
	// Workers bounds parallel line processing; zero uses GOMAXPROCS.
	Workers int
	// IncludeArchived lets reads fall back to the archive directory when the
	// live instance file is missing.
	IncludeArchived bool
}

// NewQueryEngine creates a QueryEngine reading from store.
func NewQueryEngine(store *storage.Store, logger logr.Logger) *QueryEngine {
	return &QueryEngine{
		store:          store,
		logger:         logger.WithName("engine"),
		MaxListEntries: DefaultMaxListEntries,
	}
}

// Store returns the underlying store.
func (qe *QueryEngine) Store() *storage.Store { return qe.store }

// Run executes p. cancelled may be nil; it is polled at the top of every task
// and before each post-processing step. Nothing is returned once cancellation is seen.
func (qe *QueryEngine) Run(ctx context.Context, p Params, cancelled func() bool) (Result, error) {
	stop := func() bool {
		return ctx.Err() != nil || (cancelled != nil && cancelled())
	}

	content, err := qe.store.ReadContent(p.Instance, storage.ReadOptions{
		IgnoreSizeCheck: p.IgnoreSizeCheck,
		IncludeArchived: qe.IncludeArchived,
		MaxParseMiB:     qe.MaxParseMiB,
	})
	if err != nil {
		return Result{}, err
	}

	filter, err := NewFilter(p)
	if err != nil {
		return Result{}, err
	}

	records, err := qe.scan(ctx, splitLines(content), filter, stop)
	if err != nil {
		return Result{}, err
	}
	if stop() {
		return Result{}, ErrCancelled
	}

	if p.Aggregate {
		records = Aggregate(records)
	}
	SortByCounter(records, p.Descending)

	if stop() {
		return Result{}, ErrCancelled
	}

	res := Result{Records: records}
	limit := qe.MaxListEntries
	if limit <= 0 {
		limit = DefaultMaxListEntries
	}
	if len(records) > limit && !p.IgnoreEntryLimit {
		res.Warning = TooManyEntriesWarning
	}

	qe.logger.V(1).Info("query completed", "instance", p.Instance, "session", p.SessionID, "records", len(records))
	return res, nil
}

// TooManyEntriesWarning is set on results larger than MaxListEntries.
const TooManyEntriesWarning = "Warning: The number of logs to ungroup is large. Creating this many list entries may consume more memory.\nCaution: Would you still like to proceed with ungrouping these messages?"

// scan decodes and filters lines in parallel chunks.
func (qe *QueryEngine) scan(ctx context.Context, lines []string, f *Filter, stop func() bool) ([]model.Record, error) {
	workers := qe.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := len(lines)/(workers*4) + 1
	if chunk < minChunk {
		chunk = minChunk
	}

	var (
		mu  sync.Mutex
		out = make([]model.Record, 0, len(lines)/4)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(lines); start += chunk {
		end := start + chunk
		if end > len(lines) {
			end = len(lines)
		}
		part := lines[start:end]

		g.Go(func() error {
			if gctx.Err() != nil || stop() {
				return nil
			}
			local := make([]model.Record, 0, len(part)/4)
			for _, line := range part {
				if stop() {
					return nil
				}
				rec, ok := decodeLine(line)
				if !ok || !f.Match(&rec) {
					continue
				}
				local = append(local, rec)
			}

			mu.Lock()
			out = append(out, local...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeLine drops blank, malformed and badly timestamped lines.
func decodeLine(line string) (model.Record, bool) {
	if strings.TrimSpace(line) == "" {
		return model.Record{}, false
	}
	rec, err := codec.Decode(line)
	if err != nil {
		return model.Record{}, false
	}
	return rec, true
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// FilterRecords applies p's filters to already decoded records, such as snapshot rows.
func FilterRecords(records []model.Record, p Params) ([]model.Record, error) {
	f, err := NewFilter(p)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(records))
	for i := range records {
		if f.Match(&records[i]) {
			out = append(out, records[i])
		}
	}
	if p.Aggregate {
		out = Aggregate(out)
	}
	SortByCounter(out, p.Descending)
	return out, nil
}

// SortByCounter sorts ascending by counter, then reverses the whole slice when descending.
func SortByCounter(records []model.Record, descending bool) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Counter < records[j].Counter
	})
	if descending {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
}

// ContextResult is a window of records around an anchor counter.
type ContextResult struct {
	Pre    []model.Record `json:"pre"`
	Anchor *model.Record  `json:"anchor"`
	Post   []model.Record `json:"post"`
}

// Surrounding returns up to limit records before and after the record whose
// counter is closest to counter. records need not be sorted.
func Surrounding(records []model.Record, counter uint64, limit int) ContextResult {
	if limit <= 0 {
		limit = 10
	}
	result := ContextResult{
		Pre:  make([]model.Record, 0, limit),
		Post: make([]model.Record, 0, limit),
	}
	if len(records) == 0 {
		return result
	}

	all := make([]model.Record, len(records))
	copy(all, records)
	SortByCounter(all, false)

	idx := sort.Search(len(all), func(i int) bool { return all[i].Counter >= counter })
	switch {
	case idx == len(all):
		idx = len(all) - 1
	case all[idx].Counter != counter && idx > 0 && counter-all[idx-1].Counter < all[idx].Counter-counter:
		idx--
	}
	result.Anchor = &all[idx]

	preStart := idx - limit
	if preStart < 0 {
		preStart = 0
	}
	result.Pre = append(result.Pre, all[preStart:idx]...)

	postEnd := idx + limit + 1
	if postEnd > len(all) {
		postEnd = len(all)
	}
	result.Post = append(result.Post, all[idx+1:postEnd]...)
	return result
}

// UserMessage maps engine and storage errors to the text shown to viewers.
func UserMessage(err error) string {
	var sw *storage.SizeWarning
	switch {
	case err == nil:
		return "Success"
	case errors.As(err, &sw):
		return sw.Error()
	case errors.Is(err, storage.ErrInstanceNotFound), errors.Is(err, storage.ErrInvalidInstance):
		return "Error: Unable to find the Instance file. Please check if the file is present or has proper read permissions."
	case errors.Is(err, storage.ErrUnreadable):
		return "Error: Unable to parse or access the log file."
	case errors.Is(err, storage.ErrNoInstances):
		return "Error: No instance files found. Please perform a simple ALS Print to generate one."
	case errors.Is(err, ErrNoSessions), errors.Is(err, ErrNoContexts):
		return err.Error()
	case errors.Is(err, ErrCancelled):
		return "Query was superseded by a newer one."
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
