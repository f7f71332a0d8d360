// Package pgshipmentstest provides an in-memory stand-in for pgshipments.Storage.
package pgshipmentstest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments"
	"github.com/pkg/errors"
)

// ErrInjected is returned by the write call selected with FailOn.
var ErrInjected = errors.New("injected write failure")

// Store повторяет семантику pgshipments в памяти: транзакция работает на копии и
// применяется целиком только при успехе fn.
type Store struct {
	mu       sync.Mutex
	rows     map[uint64]pgshipments.Row
	sessions map[string]models.SheetSession
	nextID   uint64

	// failMethod/failCall: упасть на n-м вызове метода (считая с 1).
	failMethod string
	failCall   int
	calls      map[string]int

	// ListErr, если задан, возвращается из ListRows.
	ListErr error
}

func New() *Store {
	return &Store{
		rows:     map[uint64]pgshipments.Row{},
		sessions: map[string]models.SheetSession{},
		calls:    map[string]int{},
	}
}

// FailOn makes the n-th call (from 1) of DeleteRows, UpdateRows or InsertRows fail.
func (m *Store) FailOn(method string, call int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMethod, m.failCall = method, call
	m.calls = map[string]int{}
}

// WriteCalls returns how many write statements reached the store.
func (m *Store) WriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *Store) WithinTx(ctx context.Context, fn func(tx pgshipments.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		s:        m,
		rows:     make(map[uint64]pgshipments.Row, len(m.rows)),
		sessions: make(map[string]models.SheetSession, len(m.sessions)),
		nextID:   m.nextID,
	}
	for k, v := range m.rows {
		tx.rows[k] = v
	}
	for k, v := range m.sessions {
		tx.sessions[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.rows, m.sessions, m.nextID = tx.rows, tx.sessions, tx.nextID
	return nil
}

func (m *Store) ListRows(ctx context.Context, sessionID string) ([]pgshipments.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := []pgshipments.Row{}
	for _, id := range sortedKeys(m.rows) {
		r := m.rows[id]
		if sessionID != "" && (r.SessionID == nil || *r.SessionID != sessionID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Store) GetRow(ctx context.Context, id uint64) (pgshipments.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return pgshipments.Row{}, models.ErrNotFound
	}
	return r, nil
}

func (m *Store) CreateSession(ctx context.Context, sess models.SheetSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.CreatedAt, sess.UpdatedAt = time.Now(), time.Now()
	m.sessions[sess.SessionID] = sess
	return nil
}

func (m *Store) ListSessions(ctx context.Context, userID string) ([]models.SheetSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SheetSession{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			s.ItemCount = m.countSession(s.SessionID)
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (m *Store) GetSession(ctx context.Context, userID, sessionID string) (models.SheetSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID {
		return models.SheetSession{}, models.ErrNotFound
	}
	s.ItemCount = m.countSession(sessionID)
	return s, nil
}

func (m *Store) countSession(sessionID string) int {
	n := 0
	for _, r := range m.rows {
		if r.SessionID != nil && *r.SessionID == sessionID {
			n++
		}
	}
	return n
}

// Records декодирует всё хранилище, упорядочив по id.
func (m *Store) Records() []*models.ShipmentRecord {
	rows, _ := m.ListRows(context.Background(), "")
	out := make([]*models.ShipmentRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := pgshipments.DecodeRow(r)
		if err != nil {
			panic(err)
		}
		out = append(out, rec)
	}
	return out
}

func (m *Store) IDs() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.rows)
}

// Seed stores recs as already persisted rows, keeping their lock state.
func (m *Store) Seed(recs ...*models.ShipmentRecord) []uint64 {
	var ids []uint64
	err := m.WithinTx(context.Background(), func(tx pgshipments.Tx) error {
		for _, rec := range recs {
			row, err := pgshipments.EncodeRecord(rec)
			if err != nil {
				return err
			}
			got, err := tx.InsertRows(context.Background(), []pgshipments.Row{row})
			if err != nil {
				return err
			}
			if rec.IsInvoiceLocked {
				if err := tx.UpdateLock(context.Background(), got[0], true, rec.InvoiceMemo, rec.InvoicePasswordHash); err != nil {
					return err
				}
			}
			ids = append(ids, got...)
		}
		return nil
	})
	if err != nil {
		panic(err)
	}
	m.calls = map[string]int{}
	return ids
}

type memTx struct {
	s        *Store
	rows     map[uint64]pgshipments.Row
	sessions map[string]models.SheetSession
	nextID   uint64
}

func (t *memTx) hit(method string) error {
	t.s.calls[method]++
	if t.s.failMethod == method && t.s.calls[method] == t.s.failCall {
		return errors.Wrap(ErrInjected, method)
	}
	return nil
}

func (t *memTx) ListIDs(ctx context.Context) ([]uint64, error) {
	return sortedKeys(t.rows), nil
}

func (t *memTx) ListLocked(ctx context.Context) ([]uint64, error) {
	var out []uint64
	for _, id := range sortedKeys(t.rows) {
		if t.rows[id].IsInvoiceLocked {
			out = append(out, id)
		}
	}
	return out, nil
}

func (t *memTx) GetRows(ctx context.Context, ids []uint64) ([]pgshipments.Row, error) {
	out := []pgshipments.Row{}
	for _, id := range ids {
		if r, ok := t.rows[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) DeleteRows(ctx context.Context, ids []uint64) (int64, error) {
	if err := t.hit("DeleteRows"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if _, ok := t.rows[id]; ok {
			delete(t.rows, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) UpdateRows(ctx context.Context, rows []pgshipments.Row) error {
	if err := t.hit("UpdateRows"); err != nil {
		return err
	}
	for _, r := range rows {
		old, ok := t.rows[r.ID]
		if !ok {
			return errors.Wrap(models.ErrNotFound, fmt.Sprintf("update shipment %d", r.ID))
		}
		r.IsInvoiceLocked = old.IsInvoiceLocked
		r.InvoiceMemo = old.InvoiceMemo
		r.InvoicePasswordHash = old.InvoicePasswordHash
		r.CreatedBy = old.CreatedBy
		r.CreatedAt = old.CreatedAt
		r.UpdatedAt = time.Now()
		t.rows[r.ID] = r
	}
	return nil
}

func (t *memTx) UpdateLock(ctx context.Context, id uint64, locked bool, memo, hash string) error {
	r, ok := t.rows[id]
	if !ok {
		return models.ErrNotFound
	}
	r.IsInvoiceLocked, r.InvoiceMemo, r.InvoicePasswordHash = locked, memo, hash
	t.rows[id] = r
	return nil
}

func (t *memTx) InsertRows(ctx context.Context, rows []pgshipments.Row) ([]uint64, error) {
	if err := t.hit("InsertRows"); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(rows))
	for _, r := range rows {
		t.nextID++
		r.ID = t.nextID
		r.IsInvoiceLocked, r.InvoiceMemo, r.InvoicePasswordHash = false, "", ""
		r.CreatedAt, r.UpdatedAt = time.Now(), time.Now()
		t.rows[r.ID] = r
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (t *memTx) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	s, ok := t.sessions[sessionID]
	if !ok || s.UserID != userID {
		return -1, nil
	}
	var n int64
	for id, r := range t.rows {
		if r.SessionID != nil && *r.SessionID == sessionID {
			delete(t.rows, id)
			n++
		}
	}
	delete(t.sessions, sessionID)
	return n, nil
}

func sortedKeys(m map[uint64]pgshipments.Row) []uint64 {
	out := make([]uint64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
