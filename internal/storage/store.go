// Package storage persists ALS records as one append-only text file per process instance.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/coffersTech/als/internal/codec"
	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/session"
)

const (
	// Ext is the extension of instance files.
	Ext = ".log"

	// ArchiveDir is the directory, relative to the root, that receives rotated files.
	ArchiveDir = "ArchivedLogs"

	mib = 1024 * 1024
)

var (
	ErrDirMissing       = errors.New("log directory does not exist")
	ErrNotWritable      = errors.New("log file is not writable")
	ErrInvalidInstance  = errors.New("invalid instance name")
	ErrNoInstances      = errors.New("no instance files found")
	ErrInstanceNotFound = errors.New("instance file not found")
	ErrUnreadable       = errors.New("unable to read instance file")
)

// Options configures a Store.
type Options struct {
	Dir     string
	Project string
	Logger  logr.Logger

	// Session defaults to the process-wide tracker.
	Session *session.Tracker
	// Clock defaults to a fresh wall-clock counter.
	Clock *model.Clock
	Now   func() time.Time

	// CreateSessionOnlyIfLogged skips the session marker and defers the
	// session id until the first record is appended.
	CreateSessionOnlyIfLogged bool

	// CompressArchives stores rotated files as zstd.
	CompressArchives bool
}

// Store appends records to instance files under one root directory.
type Store struct {
	dir              string
	project          string
	log              logr.Logger
	session          *session.Tracker
	clock            *model.Clock
	now              func() time.Time
	lazySession      bool
	compressArchives bool

	// locks serialises writers per file path.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Open prepares a Store rooted at opts.Dir, creating the directory if needed.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("storage: empty log directory")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if opts.Session == nil {
		opts.Session = session.Default()
	}
	if opts.Clock == nil {
		opts.Clock = model.NewClock(opts.Now)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Project == "" {
		opts.Project = "ALS"
	}
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return &Store{
		dir:              opts.Dir,
		project:          opts.Project,
		log:              logger.WithName("storage"),
		session:          opts.Session,
		clock:            opts.Clock,
		now:              opts.Now,
		lazySession:      opts.CreateSessionOnlyIfLogged,
		compressArchives: opts.CompressArchives,
		locks:            make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Project returns the project name used in instance names.
func (s *Store) Project() string { return s.project }

// SessionID returns the current session id, creating it if needed.
func (s *Store) SessionID() string { return s.session.ID() }

// Path returns the file path of a live instance.
func (s *Store) Path(instance string) string {
	return filepath.Join(s.dir, instance+Ext)
}

// StartSession starts the session and writes the session marker line to
// instance. With lazy sessions it does nothing: the id is created by the
// first Append and no marker is written.
func (s *Store) StartSession(instance string) error {
	if s.lazySession {
		return nil
	}
	s.session.Start()
	return s.WriteSessionMarker(instance)
}

// WriteSessionMarker appends the "session created" line to instance.
func (s *Store) WriteSessionMarker(instance string) error {
	line := codec.SessionMarker(s.clock.Next(), s.now(), s.session.ID())
	return s.appendLine(instance, line)
}

// Append encodes rec and appends it to instance.
// Zero counter, timestamp and session fields are filled in by the store.
func (s *Store) Append(instance string, rec model.Record) error {
	if rec.Counter == 0 {
		rec.Counter = s.clock.Next()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	if rec.SessionID == "" {
		rec.SessionID = s.session.ID()
	}
	return s.appendLine(instance, codec.Encode(rec))
}

// Log appends a record built from its arguments.
func (s *Store) Log(instance, caller, sourceID string, level model.Level, message string) error {
	return s.Append(instance, model.Record{
		Caller:   caller,
		SourceID: sourceID,
		Level:    level,
		Message:  message,
	})
}

func (s *Store) appendLine(instance, line string) error {
	if err := validInstance(instance); err != nil {
		return err
	}
	if err := s.checkDir(); err != nil {
		return err
	}

	path := s.Path(instance)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrNotWritable, path)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// One write per line keeps lines whole for readers in other processes.
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}

func (s *Store) checkDir() error {
	info, err := os.Stat(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDirMissing, s.dir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirMissing, s.dir)
	}
	return nil
}

func (s *Store) lockFor(path string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

func validInstance(instance string) error {
	if instance == "" || instance == "." || instance == ".." || filepath.Base(instance) != instance {
		return fmt.Errorf("%w: %q", ErrInvalidInstance, instance)
	}
	return nil
}
