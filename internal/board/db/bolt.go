package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const boltBucketSnapshots = "snapshots" // key: snapshot name -> sealed board

// Bolt stores the snapshot under one key of a bbolt bucket.
type Bolt struct {
	db     *bbolt.DB
	key    []byte
	logger *log.Logger
}

// OpenBolt opens (creating if needed) a bbolt file at path.
func OpenBolt(path, name string, logger *log.Logger) (*Bolt, error) {
	if name == "" {
		name = DefaultSnapshotName
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create bolt directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucketSnapshots))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Bolt{db: db, key: []byte(name), logger: defaultLogger(logger)}, nil
}

// Save implements Adapter.Save.
func (b *Bolt) Save(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(boltBucketSnapshots)).Put(b.key, seal(blob)); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		return nil
	})
}

// Load implements Adapter.Load.
func (b *Bolt) Load(ctx context.Context) ([]byte, error) {
	raw, err := b.raw()
	if err != nil {
		return nil, err
	}
	return openSealed(b.logger, "bolt:"+string(b.key), raw), nil
}

func (b *Bolt) raw() ([]byte, error) {
	var raw []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(boltBucketSnapshots)).Get(b.key)
		if v != nil {
			// bbolt memory is only valid inside the transaction
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return raw, nil
}

// Close implements Adapter.Close.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Usage implements Inspector.Usage.
func (b *Bolt) Usage(ctx context.Context) (int64, error) {
	raw, err := b.raw()
	return int64(len(raw)), err
}

// Clear implements Inspector.Clear.
func (b *Bolt) Clear(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucketSnapshots)).Delete(b.key)
	})
}
