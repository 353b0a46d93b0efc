package funding

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically expires overdue campaigns so campaigns with no
// contribution traffic still reach their terminal state. Admit-time lazy
// expiry covers the busy ones; the sweep covers the quiet ones.
type Sweeper struct {
	svc      *Service
	store    Store
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewSweeper builds the expiry sweep worker.
func NewSweeper(svc *Service, store Store, interval time.Duration, batch int, logger *slog.Logger) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{svc: svc, store: store, interval: interval, batch: batch, logger: logger}
}

// Run loops until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	due, err := w.store.ListDue(ctx, time.Now(), w.batch)
	if err != nil {
		w.logger.ErrorContext(ctx, "expiry sweep list failed", "error", err)
		return
	}
	for _, c := range due {
		if err := w.svc.ExpireIfOverdue(ctx, c.ID); err != nil {
			w.logger.ErrorContext(ctx, "expiry sweep failed",
				"campaign_id", c.ID.String(), "error", err)
		}
	}
}
