package out

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	catalogout "gametrack/internal/modules/catalog/port/out"
)

// FsnotifyWatcher fires onChange when the catalog file is rewritten,
// giving editors of the local catalog an on-demand reload without
// waiting for the scheduled refresh. The parent directory is watched
// because most editors replace the file rather than writing in place.
type FsnotifyWatcher struct {
	path string
}

func NewFsnotifyWatcher(path string) catalogout.SourceWatcher {
	return &FsnotifyWatcher{path: path}
}

func (w *FsnotifyWatcher) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch catalog dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("catalog watcher: %w", err)
		}
	}
}
