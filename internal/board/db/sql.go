package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// Dialect describes the SQL flavour of a snapshots table.
type Dialect struct {
	Name   string // sqlite, postgres, mysql
	Driver string // database/sql driver name
	Goose  string // goose dialect
	Upsert string
	Select string
	Delete string
}

var (
	// SQLite uses ncruces/go-sqlite3 in WAL mode.
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite3",
		Goose:  "sqlite3",
		Upsert: `INSERT INTO snapshots (name, payload, saved_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		Select: `SELECT payload FROM snapshots WHERE name = ?`,
		Delete: `DELETE FROM snapshots WHERE name = ?`,
	}

	// Postgres uses the pgx stdlib driver.
	Postgres = Dialect{
		Name:   "postgres",
		Driver: "pgx",
		Goose:  "postgres",
		Upsert: `INSERT INTO snapshots (name, payload, saved_at) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`,
		Select: `SELECT payload FROM snapshots WHERE name = $1`,
		Delete: `DELETE FROM snapshots WHERE name = $1`,
	}

	// MySQL uses go-sql-driver/mysql.
	MySQL = Dialect{
		Name:   "mysql",
		Driver: "mysql",
		Goose:  "mysql",
		Upsert: `INSERT INTO snapshots (name, payload, saved_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE payload = VALUES(payload), saved_at = VALUES(saved_at)`,
		Select: `SELECT payload FROM snapshots WHERE name = ?`,
		Delete: `DELETE FROM snapshots WHERE name = ?`,
	}
)

// DialectByName resolves sqlite, postgres or mysql.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unknown SQL dialect %q", name)
	}
}

// DefaultSnapshotName is the row key used when none is configured.
const DefaultSnapshotName = "board"

// SQL stores the snapshot as one row of the snapshots table.
type SQL struct {
	conn    *sql.DB
	dialect Dialect
	name    string
	logger  *log.Logger
}

// NewSQL wraps an open connection. It does not run migrations; see Migrate.
func NewSQL(conn *sql.DB, dialect Dialect, name string, logger *log.Logger) *SQL {
	if name == "" {
		name = DefaultSnapshotName
	}
	return &SQL{conn: conn, dialect: dialect, name: name, logger: defaultLogger(logger)}
}

// OpenSQLite opens (creating if needed) a sqlite database at path, enables
// WAL and a busy timeout, and migrates the schema.
//
// Example:
//
//	adapter, err := db.OpenSQLite(ctx, ".boardsync/board.db", nil)
//	if err != nil {
//	    return err
//	}
//	defer adapter.Close()
func OpenSQLite(ctx context.Context, path string, logger *log.Logger) (*SQL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open(SQLite.Driver, fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := NewSQL(conn, SQLite, DefaultSnapshotName, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQL connects to a server database (postgres or mysql) and migrates it.
func OpenSQL(ctx context.Context, dialect Dialect, dsn, name string, logger *log.Logger) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn cannot be empty")
	}
	conn, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Name, err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect.Name, err)
	}

	s := NewSQL(conn, dialect, name, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded goose migrations for the adapter's dialect.
func (s *SQL) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(s.dialect.Goose); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.conn, "migrations/"+s.dialect.Name); err != nil {
		return fmt.Errorf("failed to migrate snapshots schema: %w", err)
	}
	return nil
}

// Save implements Adapter.Save. A single upsert statement keeps it atomic.
func (s *SQL) Save(ctx context.Context, blob []byte) error {
	_, err := s.conn.ExecContext(ctx, s.dialect.Upsert, s.name, seal(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", s.name, err)
	}
	return nil
}

// Load implements Adapter.Load.
func (s *SQL) Load(ctx context.Context) ([]byte, error) {
	raw, err := s.raw(ctx)
	if err != nil {
		return nil, err
	}
	return openSealed(s.logger, s.dialect.Name+":"+s.name, raw), nil
}

func (s *SQL) raw(ctx context.Context) ([]byte, error) {
	var raw []byte
	err := s.conn.QueryRowContext(ctx, s.dialect.Select, s.name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", s.name, err)
	}
	return raw, nil
}

// Close implements Adapter.Close.
func (s *SQL) Close() error {
	if s.conn == nil {
		return nil
	}
	if s.dialect.Name == SQLite.Name {
		// Checkpoint WAL before closing
		if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
		}
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// Usage implements Inspector.Usage.
func (s *SQL) Usage(ctx context.Context) (int64, error) {
	raw, err := s.raw(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(raw)), nil
}

// Clear implements Inspector.Clear.
func (s *SQL) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, s.dialect.Delete, s.name); err != nil {
		return fmt.Errorf("failed to clear snapshot %s: %w", s.name, err)
	}
	return nil
}
