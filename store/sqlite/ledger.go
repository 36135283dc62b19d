package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/storeops-engine/generic"
)

// =============================================================================
// LEDGER STORE (generic.Store interface)
// =============================================================================

const ledgerColumns = `id, entity_id, subject_id, kind, expected_value, expected_unit,
	actual_value, actual_unit, reason, reference_id, idempotency_key, metadata_json,
	created_by, created_at`

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, e generic.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendEntry(ctx, s.db, e)
}

func (s *Store) appendEntry(ctx context.Context, q querier, e generic.Entry) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID),
		string(e.EntityID),
		string(e.SubjectID),
		string(e.Kind),
		e.Expected.Value.String(),
		string(e.Expected.Unit),
		e.Actual.Value.String(),
		string(e.Actual.Unit),
		nullString(e.Reason),
		nullString(e.ReferenceID),
		nullString(e.IdempotencyKey),
		string(metadataJSON),
		nullString(e.CreatedBy),
		formatTime(created),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// AppendBatch adds multiple entries atomically.
func (s *Store) AppendBatch(ctx context.Context, es []generic.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	for _, e := range es {
		if e.IdempotencyKey == "" {
			continue
		}
		if seen[e.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range es {
			if err := s.appendEntry(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns all entries for an entity, oldest first.
func (s *Store) Load(ctx context.Context, entityID generic.EntityID) ([]generic.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadEntries(ctx, s.db, entityID)
}

// LoadRange returns entries created in [from, to].
func (s *Store) LoadRange(ctx context.Context, entityID generic.EntityID, from, to time.Time) ([]generic.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadEntryRange(ctx, s.db, entityID, from, to)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entryExists(ctx, s.db, idempotencyKey)
}

// RecentEntries returns the newest entries across all entities.
func (s *Store) RecentEntries(ctx context.Context, limit int) ([]generic.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	return queryEntries(ctx, s.db,
		`SELECT `+ledgerColumns+` FROM ledger_entries ORDER BY created_at DESC LIMIT ?`, limit)
}

func loadEntries(ctx context.Context, q querier, entityID generic.EntityID) ([]generic.Entry, error) {
	return queryEntries(ctx, q, `
		SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE entity_id = ?
		ORDER BY created_at ASC, id ASC`, string(entityID))
}

func loadEntryRange(ctx context.Context, q querier, entityID generic.EntityID, from, to time.Time) ([]generic.Entry, error) {
	return queryEntries(ctx, q, `
		SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE entity_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC, id ASC`,
		string(entityID), formatTime(from), formatTime(to))
}

func entryExists(ctx context.Context, q querier, key string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?", key,
	).Scan(&count)
	return count > 0, err
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]generic.Entry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []generic.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (generic.Entry, error) {
	var (
		e                       generic.Entry
		id, entity, subject     string
		kind                    string
		expValue, expUnit       string
		actValue, actUnit       string
		reason, ref, key        sql.NullString
		metadataJSON, createdBy sql.NullString
		createdAt               string
	)

	err := rows.Scan(&id, &entity, &subject, &kind, &expValue, &expUnit, &actValue, &actUnit,
		&reason, &ref, &key, &metadataJSON, &createdBy, &createdAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.ID = generic.EntryID(id)
	e.EntityID = generic.EntityID(entity)
	e.SubjectID = generic.SubjectID(subject)
	e.Kind = generic.EntryKind(kind)
	e.Expected = generic.NewAmount(parseDecimal(expValue), generic.Unit(expUnit))
	e.Actual = generic.NewAmount(parseDecimal(actValue), generic.Unit(actUnit))
	e.Reason = reason.String
	e.ReferenceID = ref.String
	e.IdempotencyKey = key.String
	e.CreatedBy = createdBy.String
	e.CreatedAt = parseTime(createdAt)
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
	}
	return e, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Reads inside fn see
// the transaction's own writes.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&txStore{tx: tx, parent: s})
	})
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Append(ctx context.Context, e generic.Entry) error {
	return ts.parent.appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) AppendBatch(ctx context.Context, es []generic.Entry) error {
	for _, e := range es {
		if err := ts.parent.appendEntry(ctx, ts.tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Load(ctx context.Context, entityID generic.EntityID) ([]generic.Entry, error) {
	return loadEntries(ctx, ts.tx, entityID)
}

func (ts *txStore) LoadRange(ctx context.Context, entityID generic.EntityID, from, to time.Time) ([]generic.Entry, error) {
	return loadEntryRange(ctx, ts.tx, entityID, from, to)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return entryExists(ctx, ts.tx, idempotencyKey)
}

var (
	_ generic.TxStore = (*Store)(nil)
	_ generic.Store   = (*txStore)(nil)
)
