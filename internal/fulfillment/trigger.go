// Package fulfillment turns a completed funding campaign into a placed order
// for its registry item.
package fulfillment

import (
	"context"
	"log/slog"

	"wishwell/internal/funding"
	"wishwell/internal/orders"
	"wishwell/internal/recon"
	"wishwell/internal/shipping"
	"wishwell/pkg/domain"
	dErrors "wishwell/pkg/domain-errors"
)

// Campaigns is the slice of the funding store the trigger needs.
type Campaigns interface {
	FindCampaign(ctx context.Context, id domain.CampaignID) (*funding.Campaign, error)
	SetFulfilled(ctx context.Context, id domain.CampaignID) error
}

// Orders places the idempotent order for the funded item.
type Orders interface {
	Commit(ctx context.Context, req orders.CommitRequest) (*orders.Receipt, error)
}

// Trigger handles completed transitions from the outbox. It is safe under
// at-least-once delivery: the order commit is keyed by campaign id and the
// fulfilled flag short-circuits redeliveries.
type Trigger struct {
	campaigns Campaigns
	orders    Orders
	recon     recon.Recorder
	logger    *slog.Logger
}

// NewTrigger builds the fulfillment trigger.
func NewTrigger(campaigns Campaigns, ord Orders, rec recon.Recorder, logger *slog.Logger) *Trigger {
	return &Trigger{campaigns: campaigns, orders: ord, recon: rec, logger: logger}
}

// HandleTransition places the order for a freshly completed campaign.
func (t *Trigger) HandleTransition(ctx context.Context, campaignID domain.CampaignID, kind funding.TransitionKind) error {
	if kind != funding.TransitionCompleted {
		return nil
	}
	c, err := t.campaigns.FindCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Fulfilled {
		return nil
	}

	group := shipping.Group{
		GroupKey:         c.ShipTo.Key(),
		Address:          c.ShipTo,
		Items:            []shipping.ItemRef{c.Item},
		TotalWeightGrams: c.Item.WeightGrams(),
		TotalValue:       c.Item.Value(),
	}
	receipt, err := t.orders.Commit(ctx, orders.CommitRequest{
		RequestKey: orders.RequestKey(c.ID.String(), group.GroupKey),
		Group:      group,
		Buyer:      orders.Buyer{Name: c.Organizer, Email: c.OrganizerEmail},
		PaymentRef: "campaign:" + c.ID.String(),
		Attributes: map[string]string{"source": "group_gift", "campaign_id": c.ID.String()},
	})
	if err != nil {
		// The committer has already settled the failure and left a
		// reconciliation trail; add the campaign linkage and stop redelivery.
		// Anything else is transient and worth another poll.
		if dErrors.Is(err, dErrors.CodeUnavailable) || dErrors.Is(err, dErrors.CodeValidation) {
			t.logger.ErrorContext(ctx, "campaign fulfillment failed",
				"campaign_id", c.ID.String(), "error", err)
			entry := recon.NewEntry(recon.KindCommitFailed, c.ID.String(),
				orders.RequestKey(c.ID.String(), group.GroupKey), err.Error())
			if rerr := t.recon.Record(ctx, entry); rerr != nil {
				t.logger.ErrorContext(ctx, "reconciliation record failed",
					"campaign_id", c.ID.String(), "error", rerr)
			}
			return nil
		}
		return err
	}

	if err := t.campaigns.SetFulfilled(ctx, c.ID); err != nil {
		// The order exists; redelivery will find the created receipt and only
		// retry this flag write.
		return err
	}
	t.logger.InfoContext(ctx, "campaign fulfilled",
		"campaign_id", c.ID.String(),
		"external_order_id", receipt.ExternalOrderID,
	)
	return nil
}
