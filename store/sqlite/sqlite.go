/*
Package sqlite provides a SQLite-backed implementation of every collaborator
contract the reconcilers depend on.

PURPOSE:
  The core packages only see interfaces (shift.Source, shift.Closer,
  receiving.Catalog, receiving.ProductUpdater, ...). This package is the
  reference backend that lets the engine run as a service. In production,
  the same patterns apply to PostgreSQL with minor SQL dialect changes.

INTERFACES IMPLEMENTED:
  generic.Store / TxStore:     Reconciliation ledger
  shift.Source / shift.Closer: Shifts and sales
  receiving.Catalog:           Product name lookup
  receiving.ProductUpdater:    Per-line receipt writes
  receiving.TransferUpdater:   Shipment status advance
  receiving.Refresher:         Post-confirm reload

APPEND-ONLY ENFORCEMENT:
  ledger_entries is never updated or deleted outside Reset. Corrections are
  new entries.

KEY TABLES:
  ledger_entries:   Immutable expected-vs-actual records
  shifts, sales:    Drawer sessions and the sales that feed them
  transfers, jobs:  The two shipment sources, lines in shipment_lines
  products:         Stock and review flags updated on receipt
  product_receipts: One row per (shipment, sku); makes receipt replays safe
  worker_points:    Incentive inputs
  programs:         Incentive program JSON

INDEXES:
  - idx_shifts_one_open: at most one Open shift per cashier
  - idx_ledger_entity_created: history and range queries (hot path)

CONCURRENCY:
  Uses sync.RWMutex plus a single pooled connection. SQLite allows one
  writer; one connection also keeps ":memory:" databases coherent.

MIGRATION:
  Versioned SQL migrations live in migrations/ and are embedded in the
  binary. New runs them with goose on open.

USAGE:
  store, err := sqlite.New("./data/storeops.db", sqlite.WithLogger(logger))
  if err != nil {
      return err
  }
  defer store.Close()

  ledger := generic.NewLedger(store)

SEE ALSO:
  - generic/store.go: Ledger store contract
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	log *zap.Logger
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for bookkeeping columns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:  db,
		log: zap.NewNop(),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	if len(results) > 0 {
		s.log.Info("migrations applied", zap.Int("count", len(results)))
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"ledger_entries", "shifts", "sales", "transfers", "jobs", "shipment_lines",
		"drivers", "products", "product_receipts", "worker_points", "programs",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
