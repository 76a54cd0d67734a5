package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"foldermcp/internal/model"
)

// watch runs the steady-state loop: filesystem events accumulate behind a
// debounce window, and one incremental pass runs per quiet period. Events
// that arrive mid-pass are not lost; the timer re-arms.
func (r *Runner) watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// No watcher available; the folder still serves queries and can
		// be re-indexed through Kick.
		r.log.Warn().Err(err).Msg("filesystem watcher unavailable")
		r.waitLoop(ctx)
		return
	}
	defer watcher.Close()

	if err := addRecursive(watcher, r.folder.Path); err != nil {
		r.log.Warn().Err(err).Msg("could not watch folder tree")
	}

	timer := time.NewTimer(r.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	dirty := false
	isPaused := false

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ignoredEvent(ev) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addRecursive(watcher, ev.Name)
				}
			}
			dirty = true
			if !isPaused {
				resetTimer(timer, r.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn().Err(err).Msg("watcher error")

		case <-timer.C:
			if dirty && !isPaused {
				dirty = false
				r.reindex(ctx)
			}

		case <-r.kick:
			if !isPaused {
				dirty = false
				r.reindex(ctx)
			}

		case p := <-r.paused:
			if p == isPaused {
				continue
			}
			isPaused = p
			if isPaused {
				r.setState(model.StatePaused)
			} else {
				r.setState(model.StateWatching)
				// catch up on anything that happened while paused
				dirty = false
				r.reindex(ctx)
			}
		}
	}
}

// waitLoop substitutes for watch when no watcher could be created.
func (r *Runner) waitLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.kick:
			r.reindex(ctx)
		case p := <-r.paused:
			if p {
				r.setState(model.StatePaused)
			} else {
				r.setState(model.StateWatching)
				r.reindex(ctx)
			}
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// ignoredEvent filters noise that should never trigger re-indexing.
func ignoredEvent(ev fsnotify.Event) bool {
	if ev.Op&fsnotify.Chmod != 0 && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") && (strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, "~")) {
		return true
	}
	return false
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (name == ".git" || name == "node_modules" || name == ".folder-mcp") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
