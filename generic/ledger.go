/*
ledger.go - Append-only reconciliation log

PURPOSE:
  Every committed reconciliation (a closed shift, a confirmed receipt line)
  is recorded here with its expected and actual amounts and the operator's
  justification. The ledger is the audit trail of variances: "why was the
  drawer 200 over on Tuesday?" is answered by reading entries, never by
  inspecting mutable shift rows.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. AUDITABLE: Every variance is traceable to a person and a reason
  4. IDEMPOTENT: Same idempotency key = same entry (no duplicates)

IDEMPOTENT CLOSE:
  A shift close is keyed "shift-close:<shift id>". A retried finalize that
  already reached the ledger gets ErrDuplicateIdempotencyKey, which the
  shift package treats as success. A retry carrying a different count gets
  a ConflictError instead: the recorded entry is never silently kept over
  newer numbers.

SEE ALSO:
  - store.go: Low-level persistence interface
  - shift/ledger.go: Domain-specific wrapper for closed shifts
*/
package generic

import (
	"context"
	"errors"
	"maps"
	"time"
)

// =============================================================================
// LEDGER - Append-only reconciliation log
// =============================================================================

// Ledger is the source of truth for committed reconciliations.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Immutable: Once written, entries cannot be modified.
type Ledger interface {
	// Append adds an entry. Fails if idempotency key exists.
	Append(ctx context.Context, e Entry) error

	// AppendBatch adds multiple entries atomically.
	// Used when confirming a receipt (one entry per line).
	AppendBatch(ctx context.Context, es []Entry) error

	// Entries returns all entries for an entity, chronologically.
	Entries(ctx context.Context, entityID EntityID) ([]Entry, error)

	// EntriesInRange returns entries created in [from, to].
	EntriesInRange(ctx context.Context, entityID EntityID, from, to time.Time) ([]Entry, error)

	// NetVariance sums actual - expected over an entity's entries of one unit.
	NetVariance(ctx context.Context, entityID EntityID, unit Unit) (Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

// Append adds e. A key that is already recorded with the same values
// reports ErrDuplicateIdempotencyKey; with other values, a ConflictError.
func (l *DefaultLedger) Append(ctx context.Context, e Entry) error {
	if e.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return l.replay(ctx, []Entry{e})
		}
	}
	err := l.Store.Append(ctx, e)
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return l.replay(ctx, []Entry{e})
	}
	return err
}

// AppendBatch adds es atomically. Replays follow Append: the whole batch
// must match what was recorded.
func (l *DefaultLedger) AppendBatch(ctx context.Context, es []Entry) error {
	seen := make(map[string]bool, len(es))
	for _, e := range es {
		if e.IdempotencyKey == "" {
			continue
		}
		if seen[e.IdempotencyKey] {
			return &ConflictError{Key: e.IdempotencyKey}
		}
		seen[e.IdempotencyKey] = true

		exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return l.replay(ctx, es)
		}
	}
	err := l.Store.AppendBatch(ctx, es)
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return l.replay(ctx, es)
	}
	return err
}

func (l *DefaultLedger) replay(ctx context.Context, es []Entry) error {
	recorded, err := VerifyReplay(ctx, l, es)
	if err != nil {
		return err
	}
	if recorded < len(es) {
		return &ConflictError{Key: es[0].IdempotencyKey}
	}
	return ErrDuplicateIdempotencyKey
}

// VerifyReplay compares es with entries already recorded under the same
// keys. It returns how many of es are recorded, or a ConflictError when
// one of them was recorded with other values.
func VerifyReplay(ctx context.Context, l Ledger, es []Entry) (int, error) {
	byEntity := make(map[EntityID]map[string]Entry)
	recorded := 0
	for _, e := range es {
		if e.IdempotencyKey == "" {
			continue
		}
		stored, ok := byEntity[e.EntityID]
		if !ok {
			all, err := l.Entries(ctx, e.EntityID)
			if err != nil {
				return 0, err
			}
			stored = make(map[string]Entry, len(all))
			for _, s := range all {
				if s.IdempotencyKey != "" {
					stored[s.IdempotencyKey] = s
				}
			}
			byEntity[e.EntityID] = stored
		}
		prev, ok := stored[e.IdempotencyKey]
		if !ok {
			continue
		}
		if !SameRecord(prev, e) {
			return recorded, &ConflictError{Key: e.IdempotencyKey}
		}
		recorded++
	}
	return recorded, nil
}

// SameRecord reports whether a and b record the same reconciliation.
// Entry ids, authors and timestamps are ignored.
func SameRecord(a, b Entry) bool {
	return a.EntityID == b.EntityID &&
		a.SubjectID == b.SubjectID &&
		a.Kind == b.Kind &&
		a.Expected.Unit == b.Expected.Unit && a.Expected.Value.Equal(b.Expected.Value) &&
		a.Actual.Unit == b.Actual.Unit && a.Actual.Value.Equal(b.Actual.Value) &&
		a.Reason == b.Reason &&
		a.ReferenceID == b.ReferenceID &&
		maps.Equal(a.Metadata, b.Metadata)
}

func (l *DefaultLedger) Entries(ctx context.Context, entityID EntityID) ([]Entry, error) {
	return l.Store.Load(ctx, entityID)
}

func (l *DefaultLedger) EntriesInRange(ctx context.Context, entityID EntityID, from, to time.Time) ([]Entry, error) {
	return l.Store.LoadRange(ctx, entityID, from, to)
}

func (l *DefaultLedger) NetVariance(ctx context.Context, entityID EntityID, unit Unit) (Amount, error) {
	es, err := l.Store.Load(ctx, entityID)
	if err != nil {
		return Amount{}, err
	}

	net := NewAmountFromInt(0, unit)
	for _, e := range es {
		if e.Expected.Unit != unit {
			continue
		}
		net = net.Add(e.Variance().Delta)
	}
	return net, nil
}
