package db

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
)

// Config selects and locates a persistence backend.
type Config struct {
	// Backend is one of memory, file, sqlite, postgres, mysql, bolt, s3.
	Backend string `mapstructure:"backend"`

	// Dir holds file, sqlite and bolt data when Path is empty.
	Dir string `mapstructure:"dir"`

	// Path overrides the default file location for file, sqlite and bolt.
	Path string `mapstructure:"path"`

	// DSN is the connection string for postgres and mysql.
	DSN string `mapstructure:"dsn"`

	// Name is the snapshot key inside shared backends.
	Name string `mapstructure:"name"`

	S3 S3Config `mapstructure:"s3"`
}

// DefaultConfig stores the board in a sqlite file under .boardsync/.
func DefaultConfig() Config {
	return Config{
		Backend: "sqlite",
		Dir:     ".boardsync",
		Name:    DefaultSnapshotName,
	}
}

func (c Config) pathOr(file string) string {
	if c.Path != "" {
		return c.Path
	}
	return filepath.Join(c.Dir, file)
}

// Open builds the adapter selected by cfg.Backend.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (Adapter, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(logger), nil
	case "file":
		return NewFile(cfg.pathOr("board.json"), logger)
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.pathOr("board.db"), logger)
	case "postgres", "mysql":
		dialect, err := DialectByName(cfg.Backend)
		if err != nil {
			return nil, err
		}
		return OpenSQL(ctx, dialect, cfg.DSN, cfg.Name, logger)
	case "bolt":
		return OpenBolt(cfg.pathOr("board.bolt"), cfg.Name, logger)
	case "s3":
		return OpenS3(ctx, cfg.S3, logger)
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}
