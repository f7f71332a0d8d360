package shipments

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/BearBump/CargoLedger/internal/integrations/sheets"
	"github.com/BearBump/CargoLedger/internal/integrations/sheets/xlsxfile"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/sheetimport"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const SourceXLSXUpload = "xlsx_upload"

type ImportResult struct {
	SessionID  string                   `json:"sessionId"`
	SheetTitle string                   `json:"sheetTitle"`
	Headers    []string                 `json:"headers"`
	Records    []*models.ShipmentRecord `json:"shipments"`
	// Resumed: данные взяты из сохранённой сессии, а не из таблицы.
	Resumed bool `json:"resumed"`
}

// ImportSheet загружает таблицу по ссылке и нормализует строки в записи.
// Записи не сохраняются: клиент добавляет их в таблицу и вызывает Save.
// Если передан sessionID существующей сессии, возвращаются уже сохранённые её записи.
func (s *Service) ImportSheet(ctx context.Context, p models.Principal, url, sessionID string) (ImportResult, error) {
	if err := requireWriter(p); err != nil {
		return ImportResult{}, err
	}

	if sessionID != "" {
		return s.resumeSession(ctx, p, sessionID)
	}
	if url == "" {
		return ImportResult{}, errors.Wrap(models.ErrValidation, "url is required")
	}
	if s.sheets == nil {
		return ImportResult{}, errors.New("sheet import is not configured")
	}
	if err := s.allowImport(ctx, p); err != nil {
		return ImportResult{}, err
	}

	t, err := s.sheets.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, sheets.ErrInvalidURL) {
			return ImportResult{}, errors.Wrap(models.ErrValidation, err.Error())
		}
		return ImportResult{}, err
	}
	return s.importTable(ctx, p, t, s.norm)
}

// ImportXLSX делает то же для загруженного .xlsx файла.
func (s *Service) ImportXLSX(ctx context.Context, p models.Principal, r io.Reader, filename string) (ImportResult, error) {
	if err := requireWriter(p); err != nil {
		return ImportResult{}, err
	}
	if err := s.allowImport(ctx, p); err != nil {
		return ImportResult{}, err
	}

	t, err := xlsxfile.Read(r, filename)
	if err != nil {
		if errors.Is(err, xlsxfile.ErrNotXLSX) {
			return ImportResult{}, errors.Wrap(models.ErrValidation, err.Error())
		}
		return ImportResult{}, err
	}
	return s.importTable(ctx, p, t, s.norm.WithSource(SourceXLSXUpload))
}

func (s *Service) importTable(ctx context.Context, p models.Principal, t sheets.Table, n *sheetimport.Normalizer) (ImportResult, error) {
	recs := n.Normalize(t)
	sess := models.SheetSession{
		SessionID:  uuid.NewString(),
		UserID:     p.ID,
		SheetTitle: t.Title,
		Headers:    sheetimport.Headers(t),
	}
	for _, r := range recs {
		r.SessionID = sess.SessionID
		r.CreatedBy = p.Username
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return ImportResult{}, err
	}

	slog.Info("sheet imported", "actor", p.Username, "session", sess.SessionID, "title", t.Title, "records", len(recs))
	return ImportResult{
		SessionID:  sess.SessionID,
		SheetTitle: sess.SheetTitle,
		Headers:    sess.Headers,
		Records:    recs,
	}, nil
}

func (s *Service) resumeSession(ctx context.Context, p models.Principal, sessionID string) (ImportResult, error) {
	sess, err := s.repo.GetSession(ctx, p.ID, sessionID)
	if err != nil {
		return ImportResult{}, err
	}
	rows, err := s.repo.ListRows(ctx, sessionID)
	if err != nil {
		return ImportResult{}, err
	}
	recs, err := decodeRows(rows)
	if err != nil {
		return ImportResult{}, err
	}
	return ImportResult{
		SessionID:  sess.SessionID,
		SheetTitle: sess.SheetTitle,
		Headers:    sess.Headers,
		Records:    recs,
		Resumed:    true,
	}, nil
}

// allowImport: лимит на число импортов в минуту на пользователя.
// Недоступный Redis импорт не блокирует.
func (s *Service) allowImport(ctx context.Context, p models.Principal) error {
	if s.limiter == nil || s.opts.ImportLimitPerMinute <= 0 {
		return nil
	}
	ok, n, err := s.limiter.Allow(ctx, "ratelimit:import:"+p.ID, s.opts.ImportLimitPerMinute, time.Minute)
	if err != nil {
		slog.Warn("import rate limiter unavailable", "error", err.Error())
		return nil
	}
	if !ok {
		return errors.Wrapf(models.ErrRateLimited, "%d imports in the last minute", n)
	}
	return nil
}

func (s *Service) ListSessions(ctx context.Context, p models.Principal) ([]models.SheetSession, error) {
	if err := requireReader(p); err != nil {
		return nil, err
	}
	return s.repo.ListSessions(ctx, p.ID)
}

// DeleteSession удаляет сессию импорта вместе с её записями.
func (s *Service) DeleteSession(ctx context.Context, p models.Principal, sessionID string) (int64, error) {
	if err := requireWriter(p); err != nil {
		return 0, err
	}
	if sessionID == "" {
		return 0, errors.Wrap(models.ErrValidation, "sessionId is required")
	}

	var deleted int64
	err := s.repo.WithinTx(ctx, func(tx pgshipments.Tx) error {
		n, err := tx.DeleteSession(ctx, p.ID, sessionID)
		if err != nil {
			return err
		}
		if n < 0 {
			return errors.Wrapf(models.ErrNotFound, "session %s", sessionID)
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.changed(ctx, messages.ShipmentsChanged{Kind: messages.KindSession, Actor: p.Username, Deleted: deleted})
	return deleted, nil
}
