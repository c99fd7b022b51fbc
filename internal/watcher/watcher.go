// Package watcher reports changes to a single file, used to pick up a
// replaced caption font without restarting the agent.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gifscribe/gifscribe-agent/internal/logging"
)

type Watcher interface {
	Watch(ctx context.Context, path string) error
	Stop() error
	OnChange(callback func(path string, event EventType))
}

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

var ErrAlreadyWatching = errors.New("watcher already started")

// FileWatcher watches the directory containing one file and filters events
// down to that file. Watching the directory keeps working when the file is
// replaced by rename, which is how most editors and installers save.
type FileWatcher struct {
	logger *slog.Logger

	mu       sync.Mutex
	callback func(path string, event EventType)
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

func NewFileWatcher(logger *slog.Logger) *FileWatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &FileWatcher{logger: logging.WithComponent(logger, "watcher")}
}

func (w *FileWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}

// Watch starts watching path and returns once the watch is registered.
// Events are delivered until ctx is cancelled or Stop is called.
func (w *FileWatcher) Watch(ctx context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return ErrAlreadyWatching
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve watch path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return fmt.Errorf("add watch path: %w", err)
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	go w.loop(ctx, fsw, abs, w.done)

	w.logger.Info("watching file", "path", logging.SanitizePath(abs))
	return nil
}

func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	fsw, done := w.fsw, w.done
	w.fsw = nil
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	err := fsw.Close()
	<-done
	return err
}

func (w *FileWatcher) loop(ctx context.Context, fsw *fsnotify.Watcher, target string, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			kind, ok := classify(event.Op)
			if !ok {
				continue
			}
			w.logger.Debug("file changed", "path", logging.SanitizePath(target), "event", kind.String())

			w.mu.Lock()
			cb := w.callback
			w.mu.Unlock()
			if cb != nil {
				cb(target, kind)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func classify(op fsnotify.Op) (EventType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return EventCreate, true
	case op.Has(fsnotify.Write):
		return EventModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return EventDelete, true
	default:
		return 0, false
	}
}
