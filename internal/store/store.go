package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrNoJournal is returned by Open with MustExist when path does not exist.
var ErrNoJournal = errors.New("journal not found")

// migration upgrades a journal to version. Migrations run in order, each
// in its own transaction together with the user_version bump.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{1, "ops element index", `CREATE INDEX IF NOT EXISTS idx_ops_element ON ops(run_id, element)`},
	{2, "ops root index", `CREATE INDEX IF NOT EXISTS idx_ops_root ON ops(run_id, root, seq)`},
}

// SchemaVersion is the journal schema version this build writes.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// connParams are applied by go-sqlite3 to every pooled connection.
var connParams = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"1"},
}

// Store is the journal of engine runs. It implements Recorder.
type Store struct {
	db *sql.DB
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	mustExist bool
}

// MustExist makes Open fail with ErrNoJournal instead of creating a new,
// empty journal. Readers such as trace and replay use it.
func MustExist() Option {
	return func(c *openConfig) {
		c.mustExist = true
	}
}

// Open opens the journal at path, creating and migrating it as needed.
// ":memory:" opens a private in-memory journal.
//
// Journals written by a newer build are refused rather than downgraded.
func Open(path string, opts ...Option) (*Store, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.mustExist && path != ":memory:" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoJournal, path)
		}
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+connParams.Encode())
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One connection: SQLite has a single writer, and ":memory:" is
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return s, nil
}

// Close closes the journal. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Version returns the journal's schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// migrate creates the base tables and applies every pending migration.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	version, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if version > SchemaVersion() {
		return fmt.Errorf("journal schema v%d is newer than supported v%d", version, SchemaVersion())
	}
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	return tx.Commit()
}

// pragma reads one connection setting.
func (s *Store) pragma(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
