package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// DefaultDebounce is the quiet period a Follower waits after the last write.
const DefaultDebounce = 250 * time.Millisecond

// Follower re-issues a viewer query whenever its instance file changes.
type Follower struct {
	viewer   *Viewer
	params   Params
	callback Callback
	logger   logr.Logger

	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
}

// NewFollower creates a Follower for p. cb receives every completed refresh.
func NewFollower(v *Viewer, p Params, cb Callback, logger logr.Logger) *Follower {
	return &Follower{
		viewer:   v,
		params:   p,
		callback: cb,
		logger:   logger.WithName("follow"),
		Debounce: DefaultDebounce,
	}
}

// Run issues the query once, then again after every burst of writes,
// until ctx is done. The directory is watched so that files created later are seen.
func (f *Follower) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path := f.viewer.engine.store.Path(f.params.Instance)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	f.logger.V(1).Info("following instance", "path", path)

	f.viewer.Issue(ctx, f.params, f.callback)

	debounce := f.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			f.viewer.Cancel()
			f.viewer.Wait()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Error(err, "watch error")

		case <-timer.C:
			f.viewer.Issue(ctx, f.params, f.callback)
		}
	}
}
