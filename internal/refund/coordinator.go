// Package refund returns pooled money to contributors when a campaign ends
// without reaching its target.
package refund

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"wishwell/internal/funding"
	"wishwell/internal/recon"
	"wishwell/pkg/domain"
	dErrors "wishwell/pkg/domain-errors"
	"wishwell/pkg/platform/sentinel"
)

// Ledger is the slice of the funding store the coordinator needs.
type Ledger interface {
	FindCampaign(ctx context.Context, id domain.CampaignID) (*funding.Campaign, error)
	ListContributions(ctx context.Context, campaignID domain.CampaignID) ([]*funding.Contribution, error)
	UpdateContributionStatus(ctx context.Context, id domain.ContributionID, from, to funding.ContributionStatus) error
	SetReconciled(ctx context.Context, id domain.CampaignID) error
}

// Payments reverses a captured payment. Reverse must be idempotent per
// payment reference; the coordinator will call it again on redelivery.
type Payments interface {
	Reverse(ctx context.Context, paymentRef string, amount domain.Cents) error
}

// Coordinator handles expired and cancelled transitions by refunding every
// completed contribution. Redelivery-safe: refunded contributions are skipped
// and the reconciled flag stops the whole pass once everything is settled.
type Coordinator struct {
	ledger   Ledger
	payments Payments
	recon    recon.Recorder
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCoordinator builds the refund coordinator. timeout bounds each
// individual payment reversal.
func NewCoordinator(ledger Ledger, payments Payments, rec recon.Recorder, timeout time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		ledger:   ledger,
		payments: payments,
		recon:    rec,
		timeout:  timeout,
		logger:   logger,
	}
}

// HandleTransition refunds the contributions of a campaign that expired or was
// cancelled. Returns an error while any refund is still outstanding so the
// outbox redelivers; once every contribution is settled the campaign is marked
// reconciled.
func (c *Coordinator) HandleTransition(ctx context.Context, campaignID domain.CampaignID, kind funding.TransitionKind) error {
	if kind != funding.TransitionExpired && kind != funding.TransitionCancelled {
		return nil
	}
	campaign, err := c.ledger.FindCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Reconciled {
		return nil
	}

	contributions, err := c.ledger.ListContributions(ctx, campaignID)
	if err != nil {
		return err
	}

	// Reversals are independent of each other, so failures must not cancel
	// sibling refunds; collect them instead of using a shared-context group.
	var (
		g       errgroup.Group
		mu      sync.Mutex
		pending int
	)
	g.SetLimit(8)
	for _, contrib := range contributions {
		if contrib.Status != funding.ContributionCompleted {
			continue
		}
		contrib := contrib
		g.Go(func() error {
			if err := c.refundOne(ctx, campaign, contrib); err != nil {
				c.logger.ErrorContext(ctx, "refund failed",
					"campaign_id", campaignID.String(),
					"contribution_id", contrib.ID.String(),
					"error", err,
				)
				entry := recon.NewEntry(recon.KindRefundFailed, campaignID.String(),
					contrib.PaymentRef, err.Error())
				if rerr := c.recon.Record(ctx, entry); rerr != nil {
					c.logger.ErrorContext(ctx, "reconciliation record failed",
						"campaign_id", campaignID.String(), "error", rerr)
				}
				mu.Lock()
				pending++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if pending > 0 {
		return dErrors.Newf(dErrors.CodeUnavailable,
			"%d refunds outstanding for campaign %s", pending, campaignID)
	}
	if err := c.ledger.SetReconciled(ctx, campaignID); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "campaign reconciled",
		"campaign_id", campaignID.String(), "kind", string(kind))
	return nil
}

// refundOne reverses a single contribution and records the status flip. The
// flip is guarded by the completed status, so a redelivery that races another
// worker simply observes the done state.
func (c *Coordinator) refundOne(ctx context.Context, campaign *funding.Campaign, contrib *funding.Contribution) error {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.payments.Reverse(rctx, contrib.PaymentRef, contrib.Amount); err != nil {
		return err
	}
	err := c.ledger.UpdateContributionStatus(ctx, contrib.ID,
		funding.ContributionCompleted, funding.ContributionRefunded)
	if err != nil && !errors.Is(err, sentinel.ErrInvalidState) {
		return err
	}
	return nil
}
