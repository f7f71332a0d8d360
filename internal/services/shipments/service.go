package shipments

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/BearBump/CargoLedger/internal/cache"
	"github.com/BearBump/CargoLedger/internal/integrations/sheets"
	"github.com/BearBump/CargoLedger/internal/invoice"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/sheetimport"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments"
	"github.com/pkg/errors"
)

type Repository interface {
	WithinTx(ctx context.Context, fn func(tx pgshipments.Tx) error) error
	ListRows(ctx context.Context, sessionID string) ([]pgshipments.Row, error)
	GetRow(ctx context.Context, id uint64) (pgshipments.Row, error)

	CreateSession(ctx context.Context, sess models.SheetSession) error
	ListSessions(ctx context.Context, userID string) ([]models.SheetSession, error)
	GetSession(ctx context.Context, userID, sessionID string) (models.SheetSession, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

const (
	DefaultChunkSize   = 500
	MaxChunkSize       = 1000
	DefaultParallelism = 5

	snapshotKey = "shipments:snapshot"
)

type Options struct {
	// ChunkSize ограничивает число строк в одном пакете запросов.
	ChunkSize   int
	Parallelism int

	// SnapshotTTL: сколько живёт последний удачный снимок таблицы в кэше. 0 выключает кэш.
	SnapshotTTL time.Duration

	ChangesTopic string

	ImportLimitPerMinute int64

	Now func() time.Time
}

type Service struct {
	repo  Repository
	cache cache.BytesCache
	opts  Options

	pub     Publisher
	limiter cache.Limiter
	locker  *invoice.Locker
	sheets  sheets.Client
	norm    *sheetimport.Normalizer
}

func New(repo Repository, c cache.BytesCache, opts Options) *Service {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkSize > MaxChunkSize {
		opts.ChunkSize = MaxChunkSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:   repo,
		cache:  c,
		opts:   opts,
		locker: invoice.New(""),
		norm:   sheetimport.New(),
	}
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.pub = p
	return s
}

func (s *Service) WithLimiter(l cache.Limiter) *Service {
	s.limiter = l
	return s
}

func (s *Service) WithLocker(l *invoice.Locker) *Service {
	s.locker = l
	return s
}

func (s *Service) WithSheets(c sheets.Client) *Service {
	s.sheets = c
	return s
}

func (s *Service) WithNormalizer(n *sheetimport.Normalizer) *Service {
	s.norm = n
	return s
}

func requireReader(p models.Principal) error {
	if !p.Role.Valid() {
		return errors.Wrapf(models.ErrPermissionDenied, "role %q", p.Role)
	}
	return nil
}

func requireWriter(p models.Principal) error {
	if !p.Role.CanWrite() {
		return errors.Wrapf(models.ErrPermissionDenied, "role %q cannot modify shipments", p.Role)
	}
	return nil
}

// changed вызывается после коммита: снимок в кэше больше не актуален, остальным узлам уходит событие.
// Ошибки здесь только логируются, данные уже записаны.
func (s *Service) changed(ctx context.Context, ev messages.ShipmentsChanged) {
	s.invalidate(ctx)

	if s.pub == nil || s.opts.ChangesTopic == "" {
		return
	}
	ev.At = s.opts.Now().UTC()
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("encode change event", "error", err.Error())
		return
	}
	if err := s.pub.Publish(ctx, s.opts.ChangesTopic, []byte(ev.Kind), b); err != nil {
		slog.Error("publish change event", "kind", ev.Kind, "error", err.Error())
	}
}

// ApplyChangeEvent обрабатывает событие из Kafka, в том числе от других инстансов.
func (s *Service) ApplyChangeEvent(ctx context.Context, ev messages.ShipmentsChanged) error {
	if ev.Kind == "" {
		return errors.New("kind is required")
	}
	s.invalidate(ctx)
	slog.Info("shipments changed", "kind", ev.Kind, "actor", ev.Actor,
		"deleted", ev.Deleted, "updated", ev.Updated, "inserted", ev.Inserted)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil || s.opts.SnapshotTTL <= 0 {
		return
	}
	if err := s.cache.Del(ctx, snapshotKey); err != nil {
		slog.Warn("drop snapshot", "error", err.Error())
	}
}

func persistedIDs(ids []models.RecordID) ([]uint64, error) {
	if len(ids) == 0 {
		return nil, errors.Wrap(models.ErrValidation, "ids is empty")
	}
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		n, ok := id.Persisted()
		if !ok {
			return nil, errors.Wrapf(models.ErrNotFound, "record %s is not saved yet", id)
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// loadForUpdate читает и блокирует записи по id. Все id должны существовать.
func loadForUpdate(ctx context.Context, tx pgshipments.Tx, ids []uint64) ([]*models.ShipmentRecord, error) {
	rows, err := tx.GetRows(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]*models.ShipmentRecord, len(rows))
	for _, r := range rows {
		rec, err := pgshipments.DecodeRow(r)
		if err != nil {
			return nil, err
		}
		byID[r.ID] = rec
	}
	out := make([]*models.ShipmentRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			return nil, errors.Wrapf(models.ErrNotFound, "record %s", models.PersistedID(id))
		}
		out = append(out, rec)
	}
	return out, nil
}

func rawIDs(recs []*models.ShipmentRecord) []uint64 {
	out := make([]uint64, 0, len(recs))
	for _, r := range recs {
		if id, ok := r.ID.Persisted(); ok {
			out = append(out, id)
		}
	}
	return out
}
