// Package warmer keeps the cached shipments snapshot fresh, so the API can
// serve the table while Postgres is unavailable.
package warmer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Refresher interface {
	RefreshSnapshot(ctx context.Context) (int, error)
}

type Warmer struct {
	svc      Refresher
	interval time.Duration
	// debounce склеивает пачку событий от одного сохранения в одно обновление
	debounce time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalRefreshes      atomic.Int64
	totalErrors         atomic.Int64
	lastRecords         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(svc Refresher) *Warmer {
	return &Warmer{
		svc:               svc,
		interval:          5 * time.Minute,
		debounce:          500 * time.Millisecond,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (w *Warmer) WithSettings(interval, debounce time.Duration) *Warmer {
	if interval > 0 {
		w.interval = interval
	}
	if debounce >= 0 {
		w.debounce = debounce
	}
	return w
}

// Trigger requests a refresh. Calls made while one is pending are merged.
func (w *Warmer) Trigger() {
	w.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalRefreshes int64      `json:"totalRefreshes"`
	TotalErrors    int64      `json:"totalErrors"`
	LastRecords    int64      `json:"lastRecords"`
	LastError      string     `json:"lastError,omitempty"`
}

func (w *Warmer) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalRefreshes: w.totalRefreshes.Load(),
		TotalErrors:    w.totalErrors.Load(),
		LastRecords:    w.lastRecords.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

// Run refreshes once at start, then on every tick and trigger until ctx ends.
func (w *Warmer) Run(ctx context.Context) error {
	w.runOnce(ctx)

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.runOnce(ctx)
		case <-w.triggerCh:
			if w.debounce > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(w.debounce):
				}
			}
			w.runOnce(ctx)
		}
	}
}

func (w *Warmer) runOnce(ctx context.Context) {
	w.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())

	n, err := w.svc.RefreshSnapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.totalErrors.Add(1)
		w.lastErrorMu.Lock()
		w.lastError = err.Error()
		w.lastErrorMu.Unlock()
		slog.Error("refresh snapshot", "error", err.Error())
		return
	}
	w.totalRefreshes.Add(1)
	w.lastRecords.Store(int64(n))
	slog.Debug("snapshot refreshed", "records", n)
}
