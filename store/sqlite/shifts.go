package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/shift"
)

// =============================================================================
// SHIFTS (shift.Source, shift.Closer)
// =============================================================================

const shiftColumns = `id, site_id, cashier_id, cashier_name, start_time, status, opening_float,
	cash_sales, card_sales, mobile_sales, expected_cash, actual_cash, variance,
	denominations_json, discrepancy_reason, end_time`

// OpenShift inserts a new Open shift. A cashier with a shift already open
// gets a validation error.
func (s *Store) OpenShift(ctx context.Context, r shift.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, site_id, cashier_id, cashier_name, start_time, status, opening_float)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SiteID, r.CashierID, r.CashierName, formatTime(r.StartTime),
		string(shift.StatusOpen), r.OpeningFloat.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.NewValidationError(generic.CodeInvalidInput,
				"cashier %s already has an open shift", r.CashierID)
		}
		return fmt.Errorf("failed to open shift: %w", err)
	}
	return nil
}

// Shift returns a shift by id.
func (s *Store) Shift(ctx context.Context, id string) (shift.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanShift(s.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return shift.Record{}, &generic.NotFoundError{Kind: "shift", Key: id}
	}
	return rec, err
}

// ActiveShift returns the cashier's open shift.
func (s *Store) ActiveShift(ctx context.Context, cashierID string) (shift.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanShift(s.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE cashier_id = ? AND status = ?`,
		cashierID, string(shift.StatusOpen)))
	if errors.Is(err, sql.ErrNoRows) {
		return shift.Record{}, &generic.NotFoundError{Kind: "open shift", Key: cashierID}
	}
	return rec, err
}

// CashierShifts returns a cashier's shifts, newest first.
func (s *Store) CashierShifts(ctx context.Context, cashierID string) ([]shift.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE cashier_id = ? ORDER BY start_time DESC`, cashierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shift.Record
	for rows.Next() {
		rec, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CloseShift writes the finalized record. Closing a shift that is already
// closed with the same count succeeds without rewriting it. A recount of a
// closed shift replaces the stored close only while the close has no
// ledger entry; once audited it is a conflict.
func (s *Store) CloseShift(ctx context.Context, r shift.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.writeClose(ctx, r, shift.StatusOpen)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	stored, err := scanShift(s.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, r.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return &generic.NotFoundError{Kind: "shift", Key: r.ID}
	}
	if err != nil {
		return err
	}
	if stored.Status != shift.StatusClosed {
		return fmt.Errorf("shift %s in unexpected status %q", r.ID, stored.Status)
	}
	if sameClose(stored, r) {
		return nil
	}

	key := shift.IdempotencyKey(r.ID)
	audited, err := entryExists(ctx, s.db, key)
	if err != nil {
		return err
	}
	if audited {
		return &generic.ConflictError{Key: key}
	}
	s.log.Info("closed shift recounted before audit", zap.String("shift_id", r.ID),
		zap.String("was", stored.ActualCash.String()), zap.String("now", r.ActualCash.String()))
	_, err = s.writeClose(ctx, r, shift.StatusClosed)
	return err
}

// writeClose stores the closing figures on a shift currently in status
// from and reports how many rows changed.
func (s *Store) writeClose(ctx context.Context, r shift.Record, from shift.Status) (int64, error) {
	denoms, err := json.Marshal(r.Denominations)
	if err != nil {
		return 0, fmt.Errorf("failed to encode denominations: %w", err)
	}
	end := r.EndTime
	if end == nil {
		now := s.now()
		end = &now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts SET
			status = ?, cash_sales = ?, card_sales = ?, mobile_sales = ?,
			expected_cash = ?, actual_cash = ?, variance = ?,
			denominations_json = ?, discrepancy_reason = ?, end_time = ?
		WHERE id = ? AND status = ?`,
		string(shift.StatusClosed), r.CashSales.String(), r.CardSales.String(), r.MobileSales.String(),
		r.ExpectedCash.String(), r.ActualCash.String(), r.Variance.String(),
		string(denoms), nullString(r.DiscrepancyReason), nullTime(end),
		r.ID, string(from),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close shift: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func sameClose(a, b shift.Record) bool {
	return a.ActualCash.Equal(b.ActualCash) &&
		a.DiscrepancyReason == b.DiscrepancyReason &&
		maps.Equal(a.Denominations, b.Denominations)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShift(row rowScanner) (shift.Record, error) {
	var (
		r                           shift.Record
		start, status               string
		opening, cash, card, mobile string
		expected, actual, variance  string
		denoms, reason, end         sql.NullString
	)
	err := row.Scan(&r.ID, &r.SiteID, &r.CashierID, &r.CashierName, &start, &status, &opening,
		&cash, &card, &mobile, &expected, &actual, &variance, &denoms, &reason, &end)
	if err != nil {
		return r, err
	}

	r.StartTime = parseTime(start)
	r.Status = shift.Status(status)
	r.OpeningFloat = parseDecimal(opening)
	r.CashSales = parseDecimal(cash)
	r.CardSales = parseDecimal(card)
	r.MobileSales = parseDecimal(mobile)
	r.ExpectedCash = parseDecimal(expected)
	r.ActualCash = parseDecimal(actual)
	r.Variance = parseDecimal(variance)
	r.DiscrepancyReason = reason.String
	if denoms.Valid && denoms.String != "" && denoms.String != "null" {
		_ = json.Unmarshal([]byte(denoms.String), &r.Denominations)
	}
	if end.Valid {
		t := parseTime(end.String)
		r.EndTime = &t
	}
	return r, nil
}

// =============================================================================
// SALES
// =============================================================================

// RecordSale stores a till sale for siteID.
func (s *Store) RecordSale(ctx context.Context, siteID string, sale shift.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, site_id, cashier_name, sale_date, payment_method, total, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		sale.ID, siteID, sale.CashierName, formatTime(sale.Date),
		string(sale.Method), sale.Total.String(), string(sale.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to record sale: %w", err)
	}
	return nil
}

// SalesSince returns the cashier's sales dated at or after since. Status
// filtering is left to shift.Summarize.
func (s *Store) SalesSince(ctx context.Context, cashierName string, since time.Time) ([]shift.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cashier_name, sale_date, payment_method, total, status
		FROM sales
		WHERE cashier_name = ? AND sale_date >= ?
		ORDER BY sale_date ASC`,
		cashierName, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var out []shift.Sale
	for rows.Next() {
		var (
			sale                 shift.Sale
			date, method, status string
			total                string
		)
		if err := rows.Scan(&sale.ID, &sale.CashierName, &date, &method, &total, &status); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sale.Date = parseTime(date)
		sale.Method = shift.PaymentMethod(method)
		sale.Total = parseDecimal(total)
		sale.Status = shift.SaleStatus(status)
		out = append(out, sale)
	}
	return out, rows.Err()
}

var (
	_ shift.Source = (*Store)(nil)
	_ shift.Closer = (*Store)(nil)
)
