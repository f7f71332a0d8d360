package shipments

import (
	"context"
	"log/slog"

	"github.com/BearBump/CargoLedger/internal/auditlog"
	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Save приводит хранилище к присланному снимку таблицы целиком:
// записи, которых нет в снимке, удаляются, известные обновляются, остальные вставляются.
// Всё происходит в одной транзакции; при любой ошибке ничего не меняется.
func (s *Service) Save(ctx context.Context, p models.Principal, snapshot []*models.ShipmentRecord) (models.SaveResult, error) {
	if err := requireWriter(p); err != nil {
		return models.SaveResult{}, err
	}
	if err := validateSnapshot(snapshot); err != nil {
		return models.SaveResult{}, err
	}

	var res models.SaveResult
	var touched []uint64
	err := s.repo.WithinTx(ctx, func(tx pgshipments.Tx) error {
		stored, err := tx.ListIDs(ctx)
		if err != nil {
			return err
		}
		locked, err := tx.ListLocked(ctx)
		if err != nil {
			return err
		}
		plan := planSave(stored, locked, snapshot)
		if plan.updates, err = keepStoredLogs(ctx, tx, plan.updates); err != nil {
			return err
		}
		for _, rec := range plan.inserts {
			if rec.CreatedBy == "" {
				rec.CreatedBy = p.Username
			}
		}
		if len(plan.lockedDeletes) > 0 {
			return errors.Wrapf(models.ErrRecordLocked, "record %s is missing from the snapshot", models.PersistedID(plan.lockedDeletes[0]))
		}

		for _, ids := range chunk(plan.deletes, s.opts.ChunkSize) {
			n, err := tx.DeleteRows(ctx, ids)
			if err != nil {
				return err
			}
			res.Deleted += int(n)
		}

		updates, err := s.encodeChunks(ctx, plan.updates)
		if err != nil {
			return err
		}
		for _, rows := range updates {
			if err := tx.UpdateRows(ctx, rows); err != nil {
				return err
			}
			res.Updated += len(rows)
		}

		inserts, err := s.encodeChunks(ctx, plan.inserts)
		if err != nil {
			return err
		}
		for _, rows := range inserts {
			ids, err := tx.InsertRows(ctx, rows)
			if err != nil {
				return err
			}
			res.Inserted += len(ids)
			touched = append(touched, ids...)
		}
		touched = append(touched, rawIDs(plan.updates)...)
		return nil
	})
	if err != nil {
		slog.Error("save shipments", "actor", p.Username, "records", len(snapshot), "error", err.Error())
		return models.SaveResult{}, err
	}

	slog.Info("shipments saved", "actor", p.Username,
		"deleted", res.Deleted, "updated", res.Updated, "inserted", res.Inserted)
	s.changed(ctx, messages.ShipmentsChanged{
		Kind:      messages.KindSave,
		Actor:     p.Username,
		Deleted:   int64(res.Deleted),
		Updated:   int64(res.Updated),
		Inserted:  int64(res.Inserted),
		RecordIDs: touched,
	})
	return res, nil
}

type savePlan struct {
	deletes       []uint64
	lockedDeletes []uint64
	updates       []*models.ShipmentRecord
	inserts       []*models.ShipmentRecord
}

// planSave делит снимок на удаления, обновления и вставки.
// Id, похожий на сохранённый, но не найденный в хранилище, считается новой записью.
// Залоченные записи не переписываются: их содержимое остаётся как в хранилище.
func planSave(stored, locked []uint64, snapshot []*models.ShipmentRecord) savePlan {
	storedSet := make(map[uint64]struct{}, len(stored))
	for _, id := range stored {
		storedSet[id] = struct{}{}
	}
	lockedSet := make(map[uint64]struct{}, len(locked))
	for _, id := range locked {
		lockedSet[id] = struct{}{}
	}

	var plan savePlan
	referenced := make(map[uint64]struct{}, len(snapshot))
	for _, rec := range snapshot {
		if id, ok := rec.ID.Persisted(); ok {
			if _, exists := storedSet[id]; exists {
				referenced[id] = struct{}{}
				if _, isLocked := lockedSet[id]; !isLocked {
					plan.updates = append(plan.updates, rec)
				}
				continue
			}
		}
		plan.inserts = append(plan.inserts, fresh(rec))
	}

	for _, id := range stored {
		if _, ok := referenced[id]; ok {
			continue
		}
		if _, isLocked := lockedSet[id]; isLocked {
			plan.lockedDeletes = append(plan.lockedDeletes, id)
			continue
		}
		plan.deletes = append(plan.deletes, id)
	}
	return plan
}

// keepStoredLogs заменяет журнал обновляемых записей тем, что лежит в хранилище.
// Журнал пополняется только через правки и AppendAuditEntry, снимок его не переписывает.
func keepStoredLogs(ctx context.Context, tx pgshipments.Tx, updates []*models.ShipmentRecord) ([]*models.ShipmentRecord, error) {
	if len(updates) == 0 {
		return updates, nil
	}
	stored, err := loadForUpdate(ctx, tx, rawIDs(updates))
	if err != nil {
		return nil, err
	}
	out := make([]*models.ShipmentRecord, len(updates))
	for i, rec := range updates {
		next := rec.Clone()
		next.Logs = stored[i].Logs
		out[i] = next
	}
	return out, nil
}

// fresh готовит запись к вставке: новая запись всегда без замка,
// а из пришедших записей журнала выброшены итоговые поля.
func fresh(rec *models.ShipmentRecord) *models.ShipmentRecord {
	out := rec.Clone()
	out.ID = models.PendingID(rec.ID.String())
	out.IsInvoiceLocked = false
	out.InvoiceMemo = ""
	out.InvoicePasswordHash = ""
	out.Selected = false
	for i, e := range out.Logs {
		out.Logs[i] = auditlog.Sanitize(e)
	}
	return out
}

func validateSnapshot(snapshot []*models.ShipmentRecord) error {
	seen := make(map[string]struct{}, len(snapshot))
	for i, rec := range snapshot {
		if rec == nil || rec.ID.IsZero() {
			return errors.Wrapf(models.ErrValidation, "record #%d has no id", i)
		}
		key := rec.ID.String()
		if _, dup := seen[key]; dup {
			return errors.Wrapf(models.ErrValidation, "duplicate id %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// encodeChunks готовит JSON-представление пакетов параллельно; порядок пакетов сохраняется.
func (s *Service) encodeChunks(ctx context.Context, recs []*models.ShipmentRecord) ([][]pgshipments.Row, error) {
	chunks := chunk(recs, s.opts.ChunkSize)
	out := make([][]pgshipments.Row, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)
	for i, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows := make([]pgshipments.Row, 0, len(c))
			for _, rec := range c {
				r, err := pgshipments.EncodeRecord(rec)
				if err != nil {
					return errors.Wrapf(err, "encode record %s", rec.ID)
				}
				rows = append(rows, r)
			}
			out[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
