// Package outbox delivers campaign transition records written by the funding
// store to their downstream handlers. Records are produced in the same atomic
// unit as the status change, so delivery is at least once and handlers must be
// idempotent.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"wishwell/internal/funding"
	"wishwell/pkg/domain"
)

// Handler consumes one campaign transition. A nil return marks the record
// processed; an error leaves it for the next poll.
type Handler interface {
	HandleTransition(ctx context.Context, campaignID domain.CampaignID, kind funding.TransitionKind) error
}

// Source is the slice of the funding store the poller reads from.
type Source interface {
	UnprocessedTransitions(ctx context.Context, limit int) ([]*funding.TransitionRecord, error)
	MarkTransitionProcessed(ctx context.Context, recordID string) error
}

// Poller drains unprocessed transition records on a fixed cadence and routes
// them by kind.
type Poller struct {
	source   Source
	handlers map[funding.TransitionKind][]Handler
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewPoller builds a poller with no routes; register handlers with On.
func NewPoller(src Source, interval time.Duration, batch int, logger *slog.Logger) *Poller {
	return &Poller{
		source:   src,
		handlers: make(map[funding.TransitionKind][]Handler),
		interval: interval,
		batch:    batch,
		logger:   logger,
	}
}

// On registers a handler for a transition kind. Multiple handlers per kind run
// in order; the record is marked processed only when all of them succeed.
func (p *Poller) On(kind funding.TransitionKind, h Handler) {
	p.handlers[kind] = append(p.handlers[kind], h)
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Drain(ctx); err != nil {
				p.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

// Drain processes one batch of unprocessed records. Exported so tests and the
// startup path can force a pass without waiting on the ticker.
func (p *Poller) Drain(ctx context.Context) error {
	records, err := p.source.UnprocessedTransitions(ctx, p.batch)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := p.dispatch(ctx, rec); err != nil {
			p.logger.WarnContext(ctx, "transition handling failed; will retry",
				"record_id", rec.ID,
				"campaign_id", rec.CampaignID.String(),
				"kind", string(rec.Kind),
				"error", err,
			)
			continue
		}
		if err := p.source.MarkTransitionProcessed(ctx, rec.ID); err != nil {
			p.logger.ErrorContext(ctx, "mark transition processed failed",
				"record_id", rec.ID, "error", err)
		}
	}
	return nil
}

func (p *Poller) dispatch(ctx context.Context, rec *funding.TransitionRecord) error {
	handlers := p.handlers[rec.Kind]
	if len(handlers) == 0 {
		p.logger.WarnContext(ctx, "no handler for transition kind", "kind", string(rec.Kind))
		return nil
	}
	for _, h := range handlers {
		if err := h.HandleTransition(ctx, rec.CampaignID, rec.Kind); err != nil {
			return err
		}
	}
	return nil
}
