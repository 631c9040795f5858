/*
Package sqlite provides the SQLite-backed entity store every ledger
component builds on.

PURPOSE:
  Opens one ledger file for the lifetime of the process and exposes the
  primitives the domain packages need:
  - WithTx:  atomic unit; all writes inside commit together or not at all
  - Insert:  allocates the next primary key and stamps the discriminator
  - Update:  partial UPDATE built from Optional fields (builder.go)
  - Delete:  filtered DELETE (builder.go)

SHARED TABLES:
  Several logical entities live in one physical table and are told apart by
  the Z_ENT discriminator (accounts vs categories in ZACCOUNT, import rules
  vs scheduled transactions in ZSELECTOR). Discriminator values are read
  from Z_PRIMARYKEY when the store opens, so files written by other tools
  keep their own numbering. See entity.go.

CONCURRENCY:
  Exclusive single-process access is assumed. The handle is limited to one
  connection and writers are serialized with a mutex; there is no
  inter-process locking.

MIGRATION:
  Schema is applied with golang-migrate from the embedded migrations/
  directory on every read-write open. Read-only opens skip it.

USAGE:
  store, err := sqlite.New("./ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  accounts := accounts.New(store)

SEE ALSO:
  - entity.go: discriminator registry and key allocation
  - builder.go: Update / Delete statement builders
  - errors.go: driver error translation
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/ledger-engine/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Querier is satisfied by both *sql.DB and *sql.Tx, so component code runs
// unchanged inside and outside an atomic unit.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options control how the ledger file is opened.
type Options struct {
	ReadOnly bool
}

// Store is an open ledger file.
type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	readOnly bool
	entities *registry
}

// New opens (and migrates) a ledger file read-write.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(dbPath, Options{})
}

// Open opens a ledger file with the given options.
func Open(dbPath string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" databases alive and writes serialized.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db, readOnly: opts.ReadOnly}
	if !opts.ReadOnly {
		if err := store.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	store.entities, err = loadRegistry(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load entity registry: %w", err)
	}
	return store, nil
}

func dsn(path string, opts Options) string {
	params := []string{"_foreign_keys=on", "_busy_timeout=5000"}
	if opts.ReadOnly {
		params = append(params, "mode=ro")
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&"))
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReadOnly reports whether the store was opened read-only.
func (s *Store) ReadOnly() bool { return s.readOnly }

// DB returns the querier for reads outside an atomic unit.
func (s *Store) DB() Querier { return s.db }

// migrate applies the embedded migrations to the open handle.
func (s *Store) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	// m.Close would close s.db through the driver; only the source is released.
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// =============================================================================
// ATOMIC UNIT
// =============================================================================

// WithTx executes fn within a database transaction.
// If fn returns error, the transaction is rolled back and nothing fn wrote
// is visible afterwards. If fn returns nil, the transaction is committed.
// WithTx must not be nested.
func (s *Store) WithTx(ctx context.Context, fn func(q Querier) error) error {
	if s.readOnly {
		return ledger.ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
