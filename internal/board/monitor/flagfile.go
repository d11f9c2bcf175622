package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FlagFile reports offline while a file exists at Path. It watches the
// parent directory, so the file may be created and removed freely.
type FlagFile struct {
	Path string
}

// Present reports whether the flag file exists.
func (f *FlagFile) Present() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

// Watch implements Source. The current state is signalled first.
func (f *FlagFile) Watch(ctx context.Context, signal func(bool)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.Path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	name := filepath.Base(f.Path)
	present := f.Present()
	signal(!present)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			// Chmod and partial writes don't change presence; re-stat on
			// every event for this name.
			now := f.Present()
			if now == present {
				continue
			}
			present = now
			signal(!present)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("flag file watcher: %w", err)
		}
	}
}
