package shipments

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/shipdate"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments"
	"github.com/pkg/errors"
)

type ListResult struct {
	Records []*models.ShipmentRecord `json:"shipments"`
	// Stale: хранилище недоступно, отдан последний удачный снимок.
	Stale bool `json:"stale"`
}

// List читает таблицу из хранилища, а при его недоступности отдаёт снимок из кэша.
func (s *Service) List(ctx context.Context, p models.Principal, f models.ShipmentFilter) (ListResult, error) {
	if err := requireReader(p); err != nil {
		return ListResult{}, err
	}

	rows, err := s.repo.ListRows(ctx, "")
	if err != nil {
		recs, ok := s.loadSnapshot(ctx)
		if !ok {
			return ListResult{}, err
		}
		slog.Warn("storage unavailable, serving cached snapshot", "records", len(recs), "error", err.Error())
		return ListResult{Records: filterAndSort(recs, f), Stale: true}, nil
	}

	recs, err := decodeRows(rows)
	if err != nil {
		return ListResult{}, err
	}
	s.storeSnapshot(ctx, recs)
	return ListResult{Records: filterAndSort(recs, f)}, nil
}

// RefreshSnapshot перечитывает таблицу и кладёт её снимок в кэш. Возвращает число записей.
func (s *Service) RefreshSnapshot(ctx context.Context) (int, error) {
	if s.cache == nil || s.opts.SnapshotTTL <= 0 {
		return 0, errors.New("snapshot cache is not configured")
	}
	rows, err := s.repo.ListRows(ctx, "")
	if err != nil {
		return 0, err
	}
	recs, err := decodeRows(rows)
	if err != nil {
		return 0, err
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return 0, errors.Wrap(err, "encode snapshot")
	}
	if err := s.cache.Set(ctx, snapshotKey, b, s.opts.SnapshotTTL); err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (s *Service) Get(ctx context.Context, p models.Principal, id models.RecordID) (*models.ShipmentRecord, error) {
	if err := requireReader(p); err != nil {
		return nil, err
	}
	n, ok := id.Persisted()
	if !ok {
		return nil, models.ErrNotFound
	}
	row, err := s.repo.GetRow(ctx, n)
	if err != nil {
		return nil, err
	}
	return pgshipments.DecodeRow(row)
}

func decodeRows(rows []pgshipments.Row) ([]*models.ShipmentRecord, error) {
	out := make([]*models.ShipmentRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := pgshipments.DecodeRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Service) storeSnapshot(ctx context.Context, recs []*models.ShipmentRecord) {
	if s.cache == nil || s.opts.SnapshotTTL <= 0 {
		return
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, snapshotKey, b, s.opts.SnapshotTTL)
}

func (s *Service) loadSnapshot(ctx context.Context) ([]*models.ShipmentRecord, bool) {
	if s.cache == nil || s.opts.SnapshotTTL <= 0 {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, snapshotKey)
	if err != nil || !ok {
		return nil, false
	}
	var recs []*models.ShipmentRecord
	if json.Unmarshal(b, &recs) != nil {
		return nil, false
	}
	return recs, true
}

func filterAndSort(recs []*models.ShipmentRecord, f models.ShipmentFilter) []*models.ShipmentRecord {
	out := make([]*models.ShipmentRecord, 0, len(recs))
	for _, r := range recs {
		if matches(r, f) {
			out = append(out, r)
		}
	}
	shipdate.SortNewestFirst(out, (*models.ShipmentRecord).Date)
	return out
}

func matches(r *models.ShipmentRecord, f models.ShipmentFilter) bool {
	if !shipdate.InRange(r.Date(), f.From, f.To) {
		return false
	}
	return contains(r.Get(models.FieldVehicleNumber).String(), f.VehicleNumber) &&
		contains(r.Get(models.FieldDriverName).String(), f.DriverName) &&
		contains(r.Get(models.FieldOrigin).String(), f.Origin) &&
		contains(r.Get(models.FieldDestination).String(), f.Destination) &&
		contains(r.Get(models.FieldContractor).String(), f.Contractor)
}

func contains(value, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(strings.TrimSpace(needle)))
}
