/*
store.go - Persistence interface for ledger entries

PURPOSE:
  Defines the interface between the ledger and the database.
  Different implementations can use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  - Append(): Single entry write
  - AppendBatch(): Atomic multi-entry write
  - NO Update() or Delete() methods exist

ATOMIC BATCHES:
  AppendBatch() ensures all-or-nothing semantics. A receipt with three
  lines writes three entries or none.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for entry persistence (append-only)
// =============================================================================

// Store handles persistence of ledger entries.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists an entry. Returns error if idempotency key exists.
	Append(ctx context.Context, e Entry) error

	// AppendBatch persists multiple entries atomically.
	AppendBatch(ctx context.Context, es []Entry) error

	// Load returns all entries for an entity, ordered by CreatedAt.
	Load(ctx context.Context, entityID EntityID) ([]Entry, error)

	// LoadRange returns entries with CreatedAt in [from, to].
	LoadRange(ctx context.Context, entityID EntityID, from, to time.Time) ([]Entry, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
