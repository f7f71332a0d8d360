package shipments

import (
	"context"
	"log/slog"
	"sort"

	"github.com/BearBump/CargoLedger/internal/auditlog"
	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/BearBump/CargoLedger/internal/calc"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EditRecord применяет правки одной записи из диалога редактирования.
// В журнал попадают только реально изменённые поля, итоги пересчитываются один раз.
func (s *Service) EditRecord(ctx context.Context, p models.Principal, id models.RecordID, changes map[string]models.Value) (*models.ShipmentRecord, error) {
	if err := requireWriter(p); err != nil {
		return nil, err
	}
	if err := validateChanges(changes); err != nil {
		return nil, err
	}
	ids, err := persistedIDs([]models.RecordID{id})
	if err != nil {
		return nil, err
	}

	var out *models.ShipmentRecord
	err = s.repo.WithinTx(ctx, func(tx pgshipments.Tx) error {
		recs, err := loadForUpdate(ctx, tx, ids)
		if err != nil {
			return err
		}
		before := recs[0]
		if before.IsInvoiceLocked {
			return errors.Wrapf(models.ErrRecordLocked, "record %s", before.ID)
		}

		diff := make(map[string]models.Value, len(changes))
		for f, v := range changes {
			if !before.Get(f).Equal(v) {
				diff[f] = v
			}
		}
		if len(diff) == 0 {
			out = before
			return nil
		}

		next := calc.RecomputeTotals(before, diff)
		if entry := auditlog.NewEntry(p, before, diff, false, s.opts.Now()); len(entry.ChangedFields) > 0 {
			next = auditlog.Append(next, entry)
		}
		out = next
		return updateRecords(ctx, tx, next)
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, messages.ShipmentsChanged{Kind: messages.KindEdit, Actor: p.Username, Updated: 1, RecordIDs: ids})
	return out, nil
}

// BulkEdit ставит одно значение поля всем выбранным записям, с отдельной записью журнала на каждую.
func (s *Service) BulkEdit(ctx context.Context, p models.Principal, ids []models.RecordID, field string, value models.Value) ([]*models.ShipmentRecord, error) {
	if err := requireWriter(p); err != nil {
		return nil, err
	}
	if err := validateChanges(map[string]models.Value{field: value}); err != nil {
		return nil, err
	}
	raw, err := persistedIDs(ids)
	if err != nil {
		return nil, err
	}

	var out []*models.ShipmentRecord
	err = s.repo.WithinTx(ctx, func(tx pgshipments.Tx) error {
		recs, err := loadForUpdate(ctx, tx, raw)
		if err != nil {
			return err
		}
		if err := ensureUnlocked(recs); err != nil {
			return err
		}

		now := s.opts.Now()
		change := map[string]models.Value{field: value}
		out = make([]*models.ShipmentRecord, 0, len(recs))
		for _, rec := range recs {
			next := calc.Recompute(rec, field, value)
			if entry := auditlog.NewEntry(p, rec, change, true, now); len(entry.ChangedFields) > 0 {
				next = auditlog.Append(next, entry)
			}
			out = append(out, next)
		}
		return updateRecords(ctx, tx, out...)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("bulk edit", "actor", p.Username, "field", field, "records", len(out))
	s.changed(ctx, messages.ShipmentsChanged{Kind: messages.KindBulkEdit, Actor: p.Username, Updated: int64(len(out)), RecordIDs: raw})
	return out, nil
}

// Recalculate пересчитывает 청구계 или 지급계 по текущим входным полям.
func (s *Service) Recalculate(ctx context.Context, p models.Principal, ids []models.RecordID, column string) ([]*models.ShipmentRecord, error) {
	if err := requireWriter(p); err != nil {
		return nil, err
	}
	var apply func(*models.ShipmentRecord) *models.ShipmentRecord
	switch column {
	case models.FieldBillingTotal:
		apply = calc.RecalculateBilling
	case models.FieldPaymentTotal:
		apply = calc.RecalculatePayment
	default:
		return nil, errors.Wrapf(models.ErrValidation, "column %q is not a derived total", column)
	}
	raw, err := persistedIDs(ids)
	if err != nil {
		return nil, err
	}

	var out []*models.ShipmentRecord
	err = s.repo.WithinTx(ctx, func(tx pgshipments.Tx) error {
		recs, err := loadForUpdate(ctx, tx, raw)
		if err != nil {
			return err
		}
		if err := ensureUnlocked(recs); err != nil {
			return err
		}
		out = make([]*models.ShipmentRecord, 0, len(recs))
		for _, rec := range recs {
			out = append(out, apply(rec))
		}
		return updateRecords(ctx, tx, out...)
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, messages.ShipmentsChanged{Kind: messages.KindEdit, Actor: p.Username, Updated: int64(len(out)), RecordIDs: raw})
	return out, nil
}

// Duplicate копирует выбранные записи новыми строками: без замка и с пустым журналом.
func (s *Service) Duplicate(ctx context.Context, p models.Principal, ids []models.RecordID) ([]uint64, error) {
	if err := requireWriter(p); err != nil {
		return nil, err
	}
	raw, err := persistedIDs(ids)
	if err != nil {
		return nil, err
	}

	var created []uint64
	err = s.repo.WithinTx(ctx, func(tx pgshipments.Tx) error {
		recs, err := loadForUpdate(ctx, tx, raw)
		if err != nil {
			return err
		}
		rows := make([]pgshipments.Row, 0, len(recs))
		for _, rec := range recs {
			cp := fresh(rec)
			cp.ID = models.PendingID("dup_" + uuid.NewString())
			cp.Logs = nil
			cp.CreatedBy = p.Username
			row, err := pgshipments.EncodeRecord(cp)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		created, err = tx.InsertRows(ctx, rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, messages.ShipmentsChanged{Kind: messages.KindDuplicate, Actor: p.Username, Inserted: int64(len(created)), RecordIDs: created})
	return created, nil
}

// AppendAuditEntry дописывает в журнал запись, собранную на клиенте.
// Автор берётся из токена, производные итоги вычищаются.
func (s *Service) AppendAuditEntry(ctx context.Context, p models.Principal, id models.RecordID, entry models.AuditLogEntry) (*models.ShipmentRecord, error) {
	if err := requireWriter(p); err != nil {
		return nil, err
	}
	raw, err := persistedIDs([]models.RecordID{id})
	if err != nil {
		return nil, err
	}
	entry = auditlog.Sanitize(entry)
	if len(entry.ChangedFields) == 0 {
		return nil, errors.Wrap(models.ErrValidation, "entry has no changed fields")
	}
	entry.EditorName = p.Username
	entry.EditorRole = p.Role
	entry.Timestamp = s.opts.Now().UTC()

	var out *models.ShipmentRecord
	err = s.repo.WithinTx(ctx, func(tx pgshipments.Tx) error {
		recs, err := loadForUpdate(ctx, tx, raw)
		if err != nil {
			return err
		}
		out = auditlog.Append(recs[0], entry)
		return updateRecords(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, messages.ShipmentsChanged{Kind: messages.KindAudit, Actor: p.Username, Updated: 1, RecordIDs: raw})
	return out, nil
}

func validateChanges(changes map[string]models.Value) error {
	if len(changes) == 0 {
		return errors.Wrap(models.ErrValidation, "no changes")
	}
	fields := make([]string, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if f == "" || models.IsReservedKey(f) {
			return errors.Wrapf(models.ErrValidation, "field %q cannot be edited", f)
		}
	}
	return nil
}

func ensureUnlocked(recs []*models.ShipmentRecord) error {
	for _, r := range recs {
		if r.IsInvoiceLocked {
			return errors.Wrapf(models.ErrRecordLocked, "record %s", r.ID)
		}
	}
	return nil
}

func updateRecords(ctx context.Context, tx pgshipments.Tx, recs ...*models.ShipmentRecord) error {
	rows := make([]pgshipments.Row, 0, len(recs))
	for _, rec := range recs {
		row, err := pgshipments.EncodeRecord(rec)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return tx.UpdateRows(ctx, rows)
}
