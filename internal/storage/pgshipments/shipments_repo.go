package pgshipments

import (
	"context"
	"fmt"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Tx is the set of writes available inside WithinTx.
type Tx interface {
	// ListIDs returns every stored id and locks those rows until the transaction ends.
	ListIDs(ctx context.Context) ([]uint64, error)
	// ListLocked returns the ids of invoice-locked rows.
	ListLocked(ctx context.Context) ([]uint64, error)
	GetRows(ctx context.Context, ids []uint64) ([]Row, error)
	DeleteRows(ctx context.Context, ids []uint64) (int64, error)
	// UpdateRows rewrites record content. Lock columns are left as stored.
	UpdateRows(ctx context.Context, rows []Row) error
	UpdateLock(ctx context.Context, id uint64, locked bool, memo, hash string) error
	InsertRows(ctx context.Context, rows []Row) ([]uint64, error)
	DeleteSession(ctx context.Context, userID, sessionID string) (int64, error)
}

type pgTx struct {
	tx pgx.Tx
}

const rowColumns = `
  id, ship_date, contractor, affiliation, vehicle_number, driver_name, contact,
  origin, destination, amount, source_sheet, all_data, auto_calculated_fields, logs,
  is_invoice_locked, invoice_memo, invoice_password_hash, source, created_by, session_id,
  created_at, updated_at`

func (t *pgTx) ListIDs(ctx context.Context) ([]uint64, error) {
	return t.selectIDs(ctx, `SELECT id FROM shipments_data ORDER BY id FOR UPDATE`)
}

func (t *pgTx) ListLocked(ctx context.Context) ([]uint64, error) {
	return t.selectIDs(ctx, `SELECT id FROM shipments_data WHERE is_invoice_locked ORDER BY id`)
}

func (t *pgTx) selectIDs(ctx context.Context, q string) ([]uint64, error) {
	rows, err := t.tx.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "select ids")
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan id")
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return ids, nil
}

func (t *pgTx) GetRows(ctx context.Context, ids []uint64) ([]Row, error) {
	if len(ids) == 0 {
		return []Row{}, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT`+rowColumns+` FROM shipments_data WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	return scanRows(rows)
}

func (t *pgTx) DeleteRows(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM shipments_data WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "delete shipments")
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) UpdateRows(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
UPDATE shipments_data
SET
  ship_date = $2, contractor = $3, affiliation = $4, vehicle_number = $5, driver_name = $6,
  contact = $7, origin = $8, destination = $9, amount = $10, source_sheet = $11,
  all_data = $12, auto_calculated_fields = $13, logs = $14,
  source = $15, session_id = $16,
  updated_at = now()
WHERE id = $1
`, r.ID, r.ShipDate, r.Contractor, r.Affiliation, r.VehicleNumber, r.DriverName,
			r.Contact, r.Origin, r.Destination, r.Amount, r.SourceSheet,
			string(r.AllData), string(r.AutoCalc), string(r.Logs),
			r.Source, r.SessionID)
	}

	br := t.tx.SendBatch(ctx, b)
	for _, r := range rows {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return errors.Wrap(err, "update shipment")
		}
		if tag.RowsAffected() != 1 {
			_ = br.Close()
			return errors.Wrap(models.ErrNotFound, fmt.Sprintf("update shipment %d", r.ID))
		}
	}
	return errors.Wrap(br.Close(), "close update batch")
}

func (t *pgTx) UpdateLock(ctx context.Context, id uint64, locked bool, memo, hash string) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE shipments_data
SET is_invoice_locked = $2, invoice_memo = $3, invoice_password_hash = $4, updated_at = now()
WHERE id = $1
`, id, locked, memo, hash)
	if err != nil {
		return errors.Wrap(err, "update invoice lock")
	}
	if tag.RowsAffected() != 1 {
		return errors.Wrap(models.ErrNotFound, fmt.Sprintf("update invoice lock %d", id))
	}
	return nil
}

func (t *pgTx) InsertRows(ctx context.Context, rows []Row) ([]uint64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
INSERT INTO shipments_data (
  ship_date, contractor, affiliation, vehicle_number, driver_name, contact,
  origin, destination, amount, source_sheet, all_data, auto_calculated_fields, logs,
  is_invoice_locked, invoice_memo, invoice_password_hash, source, created_by, session_id
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
RETURNING id
`, r.ShipDate, r.Contractor, r.Affiliation, r.VehicleNumber, r.DriverName, r.Contact,
			r.Origin, r.Destination, r.Amount, r.SourceSheet,
			string(r.AllData), string(r.AutoCalc), string(r.Logs),
			r.IsInvoiceLocked, r.InvoiceMemo, r.InvoicePasswordHash,
			r.Source, r.CreatedBy, r.SessionID)
	}

	br := t.tx.SendBatch(ctx, b)
	ids := make([]uint64, 0, len(rows))
	for range rows {
		var id uint64
		if err := br.QueryRow().Scan(&id); err != nil {
			_ = br.Close()
			return nil, errors.Wrap(err, "insert shipment")
		}
		ids = append(ids, id)
	}
	if err := br.Close(); err != nil {
		return nil, errors.Wrap(err, "close insert batch")
	}
	return ids, nil
}

// DeleteSession removes a user's import session together with its records.
// It returns -1 when the session does not belong to userID.
func (t *pgTx) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	var owner string
	err := t.tx.QueryRow(ctx, `SELECT user_id FROM sheet_sessions WHERE session_id = $1 FOR UPDATE`, sessionID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != userID) {
		return -1, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "select session")
	}

	tag, err := t.tx.Exec(ctx, `DELETE FROM shipments_data WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, errors.Wrap(err, "delete session shipments")
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM sheet_sessions WHERE session_id = $1`, sessionID); err != nil {
		return 0, errors.Wrap(err, "delete session")
	}
	return tag.RowsAffected(), nil
}

// ListRows returns all stored rows, oldest id first. An empty sessionID means every session.
func (s *Storage) ListRows(ctx context.Context, sessionID string) ([]Row, error) {
	q := `SELECT` + rowColumns + ` FROM shipments_data`
	args := []any{}
	if sessionID != "" {
		q += ` WHERE session_id = $1`
		args = append(args, sessionID)
	}
	q += ` ORDER BY id`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	return scanRows(rows)
}

func (s *Storage) GetRow(ctx context.Context, id uint64) (Row, error) {
	rows, err := s.db.Query(ctx, `SELECT`+rowColumns+` FROM shipments_data WHERE id = $1`, id)
	if err != nil {
		return Row{}, errors.Wrap(err, "select shipment")
	}
	out, err := scanRows(rows)
	if err != nil {
		return Row{}, err
	}
	if len(out) == 0 {
		return Row{}, models.ErrNotFound
	}
	return out[0], nil
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var r Row
		var allData, autoCalc, logs string
		if err := rows.Scan(
			&r.ID, &r.ShipDate, &r.Contractor, &r.Affiliation, &r.VehicleNumber, &r.DriverName, &r.Contact,
			&r.Origin, &r.Destination, &r.Amount, &r.SourceSheet, &allData, &autoCalc, &logs,
			&r.IsInvoiceLocked, &r.InvoiceMemo, &r.InvoicePasswordHash, &r.Source, &r.CreatedBy, &r.SessionID,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		r.AllData = []byte(allData)
		r.AutoCalc = []byte(autoCalc)
		r.Logs = []byte(logs)
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
