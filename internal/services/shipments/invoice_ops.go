package shipments

import (
	"context"
	"strconv"
	"time"

	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments"
)

const (
	logFieldLocked = "isInvoiceLocked"
	logFieldMemo   = "invoiceMemo"
)

// LockInvoice фиксирует запись под инвойс. Переход пишется в журнал.
func (s *Service) LockInvoice(ctx context.Context, p models.Principal, id models.RecordID, memo string) (*models.ShipmentRecord, error) {
	if err := requireWriter(p); err != nil {
		return nil, err
	}
	return s.transition(ctx, p, id, messages.KindLock, func(rec *models.ShipmentRecord) error {
		return s.locker.Lock(rec, memo)
	})
}

// UnlockInvoice снимает замок при верном пароле. При неверном запись не меняется.
func (s *Service) UnlockInvoice(ctx context.Context, p models.Principal, id models.RecordID, password string) (*models.ShipmentRecord, error) {
	if err := requireWriter(p); err != nil {
		return nil, err
	}
	return s.transition(ctx, p, id, messages.KindUnlock, func(rec *models.ShipmentRecord) error {
		return s.locker.Unlock(rec, password)
	})
}

func (s *Service) transition(ctx context.Context, p models.Principal, id models.RecordID, kind string, apply func(*models.ShipmentRecord) error) (*models.ShipmentRecord, error) {
	raw, err := persistedIDs([]models.RecordID{id})
	if err != nil {
		return nil, err
	}

	var out *models.ShipmentRecord
	err = s.repo.WithinTx(ctx, func(tx pgshipments.Tx) error {
		recs, err := loadForUpdate(ctx, tx, raw)
		if err != nil {
			return err
		}
		before := recs[0]
		next := before.Clone()
		if err := apply(next); err != nil {
			return err
		}

		next.Logs = append(next.Logs, lockEntry(p, before, next, s.opts.Now()))
		if err := updateRecords(ctx, tx, next); err != nil {
			return err
		}
		if err := tx.UpdateLock(ctx, raw[0], next.IsInvoiceLocked, next.InvoiceMemo, next.InvoicePasswordHash); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, messages.ShipmentsChanged{Kind: kind, Actor: p.Username, Updated: 1, RecordIDs: raw})
	return out, nil
}

func lockEntry(p models.Principal, before, after *models.ShipmentRecord, now time.Time) models.AuditLogEntry {
	e := models.AuditLogEntry{
		Timestamp:     now.UTC(),
		EditorName:    p.Username,
		EditorRole:    p.Role,
		ChangedFields: []string{logFieldLocked},
		OldValues:     map[string]models.Value{logFieldLocked: models.String(strconv.FormatBool(before.IsInvoiceLocked))},
		NewValues:     map[string]models.Value{logFieldLocked: models.String(strconv.FormatBool(after.IsInvoiceLocked))},
	}
	if before.InvoiceMemo != after.InvoiceMemo {
		e.ChangedFields = append(e.ChangedFields, logFieldMemo)
		e.OldValues[logFieldMemo] = models.String(before.InvoiceMemo)
		e.NewValues[logFieldMemo] = models.String(after.InvoiceMemo)
	}
	return e
}
