// Package discoveryhint is an optional, best-effort helper that watches a
// project directory tree for newly created transcript files using
// fsnotify, and forwards a hint so an embedding application can call
// Tailer.Watch for a new session sooner than its next full directory scan
// would find it.
//
// Nothing in this module constructs a Watcher or drains its Hints channel —
// cmd/vlaude-daemon/main.go does not wire it in, and DaemonCore has no
// dependency on this package. This is deliberate: spec.md §4.3 requires that
// Tailer itself "does not maintain its own timer and does not spawn watcher
// threads" so its correctness stays easy to test by direct calls.
// DaemonCore itself only tails sessions named by startWatching; it has no
// pass of its own that discovers new session files. An embedding application that wants faster discovery
// constructs a Watcher per watched root, runs it alongside Core.Run, and
// feeds each Hint's Path into its own session-path-to-sessionKey/projectPath
// resolution before calling Tailer.Watch — that resolution is
// application-specific and is not performed here.
package discoveryhint

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Hint names a file that appeared under a watched root.
type Hint struct {
	Path string
}

// Watcher wraps an fsnotify.Watcher scoped to a set of project roots.
type Watcher struct {
	fsw    *fsnotify.Watcher
	hints  chan Hint
	logger *zap.Logger
	suffix string
}

// New constructs a Watcher. suffix filters which created files are worth a
// hint (e.g. ".jsonl"); pass "" to match everything.
func New(logger *zap.Logger, suffix string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fsw: fsw, hints: make(chan Hint, 32), logger: logger, suffix: suffix}, nil
}

// AddRoot adds a directory to watch. Non-recursive — callers add each
// project directory they care about individually, matching how projects
// are discovered one at a time elsewhere in the daemon.
func (w *Watcher) AddRoot(dir string) error {
	return w.fsw.Add(dir)
}

// Hints returns the channel of discovered-file hints.
func (w *Watcher) Hints() <-chan Hint {
	return w.hints
}

// Run drains fsnotify events until ctx is cancelled, forwarding Create
// events matching the configured suffix. Errors are logged and do not
// stop the loop.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if w.suffix != "" && filepath.Ext(event.Name) != w.suffix {
				continue
			}
			select {
			case w.hints <- Hint{Path: event.Name}:
			default:
				w.logger.Warn("discoveryhint channel full, dropping hint", zap.String("path", event.Name))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("discoveryhint watch error", zap.Error(err))
		}
	}
}

// Close releases the underlying inotify/kqueue handle.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
