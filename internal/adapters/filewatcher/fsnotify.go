// Package filewatcher reports changes in the document directory.
package filewatcher

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/0xcro3dile/ragchat/internal/domain/ports"
	"github.com/0xcro3dile/ragchat/internal/logger"
)

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	ignore     map[string]struct{}
}

// NewFSNotifyWatcher watches files with the given extensions, .csv and .json
// by default. Base names in ignore are never reported.
func NewFSNotifyWatcher(extensions []string, ignore ...string) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		extensions = []string{".csv", ".json"}
	}
	skip := make(map[string]struct{}, len(ignore))
	for _, name := range ignore {
		skip[name] = struct{}{}
	}
	return &FSNotifyWatcher{watcher: w, extensions: extensions, ignore: skip}, nil
}

// Watch starts monitoring dir. The returned channel closes when ctx is done
// or the watcher is stopped.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With("component", "filewatcher", "dir", dir)
	events := make(chan ports.FileEvent, 100)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.isWatched(event.Name) {
					continue
				}

				var op ports.FileOperation
				switch {
				case event.Has(fsnotify.Create):
					op = ports.FileCreated
				case event.Has(fsnotify.Write):
					op = ports.FileModified
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					op = ports.FileDeleted
				default:
					continue
				}

				select {
				case events <- ports.FileEvent{Path: event.Name, Operation: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Warn("watch error", "error", err)
			}
		}
	}()

	return events, nil
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *FSNotifyWatcher) isWatched(path string) bool {
	base := filepath.Base(path)
	if _, skip := w.ignore[base]; skip {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
