package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/receiving"
)

// =============================================================================
// SHIPMENT SOURCES
// =============================================================================

// SaveTransfer upserts a direct transfer and replaces its lines.
func (s *Store) SaveTransfer(ctx context.Context, t receiving.DirectTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transfers (id, source_site_id, dest_site_id, status, order_ref, created_at,
				driver_id, delivery_method, dispatch_job_status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source_site_id = excluded.source_site_id,
				dest_site_id = excluded.dest_site_id,
				status = excluded.status,
				order_ref = excluded.order_ref,
				driver_id = excluded.driver_id,
				delivery_method = excluded.delivery_method,
				dispatch_job_status = excluded.dispatch_job_status`,
			t.ID, t.SourceSiteID, t.DestSiteID, t.Status, nullString(t.OrderRef), formatTime(t.CreatedAt),
			nullString(t.DriverID), nullString(string(t.DeliveryMethod)), nullString(t.DispatchJobStatus),
		)
		if err != nil {
			return fmt.Errorf("failed to save transfer: %w", err)
		}
		return replaceLines(ctx, tx, receiving.KindTransfer, t.ID, t.Items)
	})
}

// SaveJob upserts a warehouse job and replaces its lines. Jobs of any type
// are stored; only TRANSFER jobs surface as shipments.
func (s *Store) SaveJob(ctx context.Context, j receiving.JobDerivedTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (id, job_type, site_id, dest_site_id, transfer_status, status, order_ref,
				created_at, assigned_to, delivery_method)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				job_type = excluded.job_type,
				site_id = excluded.site_id,
				dest_site_id = excluded.dest_site_id,
				transfer_status = excluded.transfer_status,
				status = excluded.status,
				order_ref = excluded.order_ref,
				assigned_to = excluded.assigned_to,
				delivery_method = excluded.delivery_method`,
			j.JobID, j.JobType, j.SiteID, nullString(j.DestSiteID), nullString(j.TransferStatus), j.JobStatus,
			nullString(j.OrderRef), formatTime(j.CreatedAt), nullString(j.AssignedTo),
			nullString(string(j.DeliveryMethod)),
		)
		if err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
		return replaceLines(ctx, tx, receiving.KindJob, j.JobID, j.LineItems)
	})
}

func replaceLines(ctx context.Context, tx *sql.Tx, kind receiving.Kind, id string, lines []receiving.SourceLine) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM shipment_lines WHERE kind = ? AND shipment_id = ?`, string(kind), id); err != nil {
		return err
	}
	for i, l := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO shipment_lines (kind, shipment_id, line_no, sku, product_id, name, quantity)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(kind), id, i, l.SKU, nullString(l.ProductID), nullString(l.Name), l.Quantity)
		if err != nil {
			return fmt.Errorf("failed to save line %d: %w", i, err)
		}
	}
	return nil
}

// Sources returns every stored transfer and job as shipment sources.
func (s *Store) Sources(ctx context.Context) ([]receiving.ShipmentSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines, err := s.loadLines(ctx)
	if err != nil {
		return nil, err
	}

	var out []receiving.ShipmentSource

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_site_id, dest_site_id, status, order_ref, created_at,
			driver_id, delivery_method, dispatch_job_status
		FROM transfers ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	for rows.Next() {
		var (
			t                               receiving.DirectTransfer
			created                         string
			orderRef, driver, method, jobSt sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.SourceSiteID, &t.DestSiteID, &t.Status, &orderRef, &created,
			&driver, &method, &jobSt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		t.OrderRef = orderRef.String
		t.CreatedAt = parseTime(created)
		t.DriverID = driver.String
		t.DeliveryMethod = receiving.DeliveryMethod(method.String)
		t.DispatchJobStatus = jobSt.String
		t.Items = lines[lineKey{receiving.KindTransfer, t.ID}]
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, job_type, site_id, dest_site_id, transfer_status, status, order_ref, created_at,
			assigned_to, delivery_method
		FROM jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			j                                  receiving.JobDerivedTransfer
			created                            string
			dest, transferSt, orderRef, assign sql.NullString
			method                             sql.NullString
		)
		if err := rows.Scan(&j.JobID, &j.JobType, &j.SiteID, &dest, &transferSt, &j.JobStatus, &orderRef,
			&created, &assign, &method); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		j.DestSiteID = dest.String
		j.TransferStatus = transferSt.String
		j.OrderRef = orderRef.String
		j.CreatedAt = parseTime(created)
		j.AssignedTo = assign.String
		j.DeliveryMethod = receiving.DeliveryMethod(method.String)
		j.LineItems = lines[lineKey{receiving.KindJob, j.JobID}]
		out = append(out, j)
	}
	return out, rows.Err()
}

type lineKey struct {
	kind receiving.Kind
	id   string
}

func (s *Store) loadLines(ctx context.Context) (map[lineKey][]receiving.SourceLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, shipment_id, sku, product_id, name, quantity
		FROM shipment_lines ORDER BY kind, shipment_id, line_no`)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipment lines: %w", err)
	}
	defer rows.Close()

	out := make(map[lineKey][]receiving.SourceLine)
	for rows.Next() {
		var (
			kind, id        string
			l               receiving.SourceLine
			productID, name sql.NullString
		)
		if err := rows.Scan(&kind, &id, &l.SKU, &productID, &name, &l.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan shipment line: %w", err)
		}
		l.ProductID = productID.String
		l.Name = name.String
		k := lineKey{receiving.Kind(kind), id}
		out[k] = append(out[k], l)
	}
	return out, rows.Err()
}

// Shipments returns every stored shipment in canonical form. Jobs that are
// not transfers are skipped.
func (s *Store) Shipments(ctx context.Context) ([]receiving.Shipment, error) {
	srcs, err := s.Sources(ctx)
	if err != nil {
		return nil, err
	}
	out, skipped := receiving.NormalizeAll(srcs)
	if len(skipped) > 0 {
		s.log.Debug("non-shipment jobs skipped", zap.Int("count", len(skipped)))
	}
	return out, nil
}

// Shipment returns one shipment by id.
func (s *Store) Shipment(ctx context.Context, id string) (receiving.Shipment, error) {
	all, err := s.Shipments(ctx)
	if err != nil {
		return receiving.Shipment{}, err
	}
	for _, sh := range all {
		if sh.ID == id {
			return sh, nil
		}
	}
	return receiving.Shipment{}, &generic.NotFoundError{Kind: "shipment", Key: id}
}

// AdvanceStatus implements receiving.TransferUpdater.
func (s *Store) AdvanceStatus(ctx context.Context, p receiving.StatusPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res sql.Result
		err error
	)
	switch p.Kind {
	case receiving.KindTransfer:
		res, err = s.db.ExecContext(ctx, `UPDATE transfers SET status = ? WHERE id = ?`, p.Status, p.ShipmentID)
	case receiving.KindJob:
		res, err = s.db.ExecContext(ctx, `UPDATE jobs SET transfer_status = ? WHERE id = ?`, p.Status, p.ShipmentID)
	default:
		return fmt.Errorf("unknown shipment kind %q", p.Kind)
	}
	if err != nil {
		return fmt.Errorf("failed to advance status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: string(p.Kind), Key: p.ShipmentID}
	}
	return nil
}

// Refresh implements receiving.Refresher. Reads always hit the database,
// so a refresh only confirms it is still reachable.
func (s *Store) Refresh(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// DRIVERS
// =============================================================================

func (s *Store) SaveDriver(ctx context.Context, d receiving.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drivers (id, name, driver_type) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, driver_type = excluded.driver_type`,
		d.ID, d.Name, string(d.Type))
	return err
}

// Drivers returns the roster keyed by driver id.
func (s *Store) Drivers(ctx context.Context) (map[string]receiving.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, driver_type FROM drivers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]receiving.Driver)
	for rows.Next() {
		var d receiving.Driver
		var typ string
		if err := rows.Scan(&d.ID, &d.Name, &typ); err != nil {
			return nil, err
		}
		d.Type = receiving.DriverType(typ)
		out[d.ID] = d
	}
	return out, rows.Err()
}

// Driver returns one driver, or nil when the id is not on the roster.
func (s *Store) Driver(ctx context.Context, id string) (*receiving.Driver, error) {
	if id == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d receiving.Driver
	var typ string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, driver_type FROM drivers WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Type = receiving.DriverType(typ)
	return &d, nil
}

// =============================================================================
// PRODUCTS (receiving.Catalog, receiving.ProductUpdater)
// =============================================================================

// ProductRecord is a product row with its stock bookkeeping.
type ProductRecord struct {
	receiving.Product
	SiteID         string
	Stock          int
	NeedsReview    bool
	LastReceivedBy string
	Notes          string
}

func (s *Store) SaveProduct(ctx context.Context, p ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, site_id, sku, name, stock) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			site_id = excluded.site_id, sku = excluded.sku, name = excluded.name, stock = excluded.stock`,
		p.ID, nullString(p.SiteID), p.SKU, p.Name, p.Stock)
	return err
}

// Product returns a product row by id.
func (s *Store) Product(ctx context.Context, id string) (ProductRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p               ProductRecord
		site, by, notes sql.NullString
		review          int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, site_id, sku, name, stock, needs_review, last_received_by, notes
		FROM products WHERE id = ?`, id).
		Scan(&p.ID, &site, &p.SKU, &p.Name, &p.Stock, &review, &by, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return p, &generic.NotFoundError{Kind: "product", Key: id}
	}
	if err != nil {
		return p, err
	}
	p.SiteID = site.String
	p.NeedsReview = review == 1
	p.LastReceivedBy = by.String
	p.Notes = notes.String
	return p, nil
}

// Lookup implements receiving.Catalog: by product id first, then by SKU.
func (s *Store) Lookup(ctx context.Context, productID, sku string) (receiving.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p receiving.Product
	if productID != "" {
		err := s.db.QueryRowContext(ctx, `SELECT id, sku, name FROM products WHERE id = ?`, productID).
			Scan(&p.ID, &p.SKU, &p.Name)
		if err == nil {
			return p, true
		}
	}
	if sku = strings.TrimSpace(sku); sku != "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT id, sku, name FROM products WHERE sku = ? COLLATE NOCASE LIMIT 1`, sku).
			Scan(&p.ID, &p.SKU, &p.Name)
		if err == nil {
			return p, true
		}
	}
	return receiving.Product{}, false
}

// UpdateProduct implements receiving.ProductUpdater. Each (shipment, line)
// receipt is stored once; a replay adjusts stock by the difference from
// the previous write, so retried confirms never double count.
func (s *Store) UpdateProduct(ctx context.Context, p receiving.ReceiptPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var previous int
		err := tx.QueryRowContext(ctx,
			`SELECT received_qty FROM product_receipts WHERE shipment_id = ? AND line_no = ?`,
			p.ShipmentID, p.Line).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_receipts (shipment_id, line_no, sku, product_id, received_qty, received_at,
				received_by, needs_review, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(shipment_id, line_no) DO UPDATE SET
				sku = excluded.sku,
				product_id = excluded.product_id,
				received_qty = excluded.received_qty,
				received_at = excluded.received_at,
				received_by = excluded.received_by,
				needs_review = excluded.needs_review,
				notes = excluded.notes`,
			p.ShipmentID, p.Line, p.SKU, nullString(p.ProductID), p.ReceivedQty, formatTime(p.ReceivedAt),
			nullString(p.ReceivedBy), boolInt(p.NeedsReview), nullString(p.Notes))
		if err != nil {
			return fmt.Errorf("failed to record receipt: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products SET
				stock = stock + ?,
				needs_review = CASE WHEN ? = 1 THEN 1 ELSE needs_review END,
				last_received_at = ?,
				last_received_by = ?,
				notes = COALESCE(?, notes)
			WHERE id = ? OR (? = '' AND sku = ? COLLATE NOCASE)`,
			p.ReceivedQty-previous, boolInt(p.NeedsReview), formatTime(p.ReceivedAt),
			nullString(p.ReceivedBy), nullString(p.Notes),
			p.ProductID, p.ProductID, p.SKU)
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		return nil
	})
}

// Receipts returns the recorded receipt patches for a shipment in line
// order.
func (s *Store) Receipts(ctx context.Context, shipmentID string) ([]receiving.ReceiptPatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT shipment_id, line_no, sku, product_id, received_qty, received_at, received_by, needs_review, notes
		FROM product_receipts WHERE shipment_id = ? ORDER BY line_no`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []receiving.ReceiptPatch
	for rows.Next() {
		var (
			p                    receiving.ReceiptPatch
			productID, by, notes sql.NullString
			at                   string
			review               int
		)
		if err := rows.Scan(&p.ShipmentID, &p.Line, &p.SKU, &productID, &p.ReceivedQty, &at, &by, &review, &notes); err != nil {
			return nil, err
		}
		p.ProductID = productID.String
		p.ReceivedAt = parseTime(at)
		p.ReceivedBy = by.String
		p.NeedsReview = review == 1
		p.Notes = notes.String
		out = append(out, p)
	}
	return out, rows.Err()
}

var (
	_ receiving.Catalog         = (*Store)(nil)
	_ receiving.ProductUpdater  = (*Store)(nil)
	_ receiving.TransferUpdater = (*Store)(nil)
	_ receiving.Refresher       = (*Store)(nil)
)
