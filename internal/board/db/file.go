package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// File stores the snapshot as a single file on the local filesystem.
type File struct {
	path   string
	logger *log.Logger
}

// NewFile returns a file adapter writing to path. The parent directory is
// created if needed.
func NewFile(path string, logger *log.Logger) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &File{path: path, logger: defaultLogger(logger)}, nil
}

// Path returns the snapshot file location.
func (f *File) Path() string { return f.path }

// Save implements Adapter.Save. The envelope is written to a temp file in
// the same directory, synced, and renamed over the old snapshot.
func (f *File) Save(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(seal(blob)); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace snapshot %s: %w", f.path, err)
	}
	return nil
}

// Load implements Adapter.Load. A corrupt snapshot is moved aside to
// <path>.corrupt-<unix> so it can be inspected later.
func (f *File) Load(ctx context.Context) ([]byte, error) {
	// #nosec G304 - path comes from configuration
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", f.path, err)
	}

	payload := openSealed(f.logger, f.path, raw)
	if payload == nil {
		aside := fmt.Sprintf("%s.corrupt-%d", f.path, time.Now().Unix())
		if err := os.Rename(f.path, aside); err != nil {
			f.logger.Printf("WARNING: failed to move corrupt snapshot aside: %v", err)
		} else {
			f.logger.Printf("Corrupt snapshot kept at %s", aside)
		}
	}
	return payload, nil
}

// Close implements Adapter.Close.
func (f *File) Close() error { return nil }

// Usage implements Inspector.Usage.
func (f *File) Usage(ctx context.Context) (int64, error) {
	info, err := os.Stat(f.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	return info.Size(), nil
}

// Clear implements Inspector.Clear.
func (f *File) Clear(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}
