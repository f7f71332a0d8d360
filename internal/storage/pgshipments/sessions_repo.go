package pgshipments

import (
	"context"
	"encoding/json"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateSession(ctx context.Context, sess models.SheetSession) error {
	headers, err := json.Marshal(sess.Headers)
	if err != nil {
		return errors.Wrap(err, "encode headers")
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO sheet_sessions (session_id, user_id, sheet_title, headers, created_at, updated_at)
VALUES ($1,$2,$3,$4, now(), now())
ON CONFLICT (session_id)
DO UPDATE SET sheet_title = EXCLUDED.sheet_title, headers = EXCLUDED.headers, updated_at = now()
`, sess.SessionID, sess.UserID, sess.SheetTitle, string(headers))
	return errors.Wrap(err, "upsert session")
}

const sessionColumns = `
  s.session_id, s.user_id, s.sheet_title, s.headers, s.created_at, s.updated_at,
  (SELECT COUNT(*) FROM shipments_data d WHERE d.session_id = s.session_id)`

func (s *Storage) ListSessions(ctx context.Context, userID string) ([]models.SheetSession, error) {
	rows, err := s.db.Query(ctx, `SELECT`+sessionColumns+`
FROM sheet_sessions s
WHERE s.user_id = $1
ORDER BY s.updated_at DESC
`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select sessions")
	}
	defer rows.Close()

	out := []models.SheetSession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetSession(ctx context.Context, userID, sessionID string) (models.SheetSession, error) {
	row := s.db.QueryRow(ctx, `SELECT`+sessionColumns+`
FROM sheet_sessions s
WHERE s.session_id = $1 AND s.user_id = $2
`, sessionID, userID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SheetSession{}, models.ErrNotFound
	}
	return sess, err
}

func scanSession(row pgx.Row) (models.SheetSession, error) {
	var sess models.SheetSession
	var headers string
	var count int64
	if err := row.Scan(&sess.SessionID, &sess.UserID, &sess.SheetTitle, &headers, &sess.CreatedAt, &sess.UpdatedAt, &count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sess, err
		}
		return sess, errors.Wrap(err, "scan session")
	}
	if err := json.Unmarshal([]byte(headers), &sess.Headers); err != nil {
		return sess, errors.Wrap(err, "decode headers")
	}
	sess.ItemCount = int(count)
	return sess, nil
}
