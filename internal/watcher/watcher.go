package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrNoMatch is returned when a pattern resolves to no file.
var ErrNoMatch = errors.New("no file matched")

// Event represents a change to the watched file.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher delivers OS-level change notifications for a single log file.
type Watcher struct {
	fsw    *fsnotify.Watcher
	Events chan Event
	path   string
	logger *zap.Logger
}

// New resolves pattern to exactly one file and starts watching it. A plain
// path is its own pattern; globs such as logs/**/access.log are expanded
// with doublestar.
func New(pattern string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path, err := Resolve(pattern)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("cannot watch %s: %w", path, err)
	}

	return &Watcher{
		fsw:    fsw,
		Events: make(chan Event, 256),
		path:   path,
		logger: logger,
	}, nil
}

// Start forwards events until the context is cancelled or the underlying
// watcher fails. It closes Events and releases the OS watch on return.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// Forward relevant events (write, create, remove, rename).
			switch {
			case ev.Op&fsnotify.Write != 0,
				ev.Op&fsnotify.Create != 0,
				ev.Op&fsnotify.Remove != 0,
				ev.Op&fsnotify.Rename != 0:
				select {
				case w.Events <- Event{Path: ev.Name, Op: ev.Op}:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Resolve expands pattern and returns the absolute path of the single
// matching file. Several matches are an error: one watcher follows one file.
func Resolve(pattern string) (string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", pattern, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNoMatch, pattern)
	case 1:
		return filepath.Abs(matches[0])
	default:
		return "", fmt.Errorf("pattern %q matches %d files, expected one", pattern, len(matches))
	}
}
