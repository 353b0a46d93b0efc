package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wishwell/internal/recon"
	"wishwell/internal/shipping"
	"wishwell/pkg/domain"
	dErrors "wishwell/pkg/domain-errors"
	"wishwell/pkg/platform/retry"
	"wishwell/pkg/platform/sentinel"
)

// Platform is the external order platform collaborator. Implementations map
// platform user errors to CodeValidation and transport failures to
// CodeUnavailable or CodeTimeout so the committer can tell what to retry.
type Platform interface {
	CreateOrder(ctx context.Context, req PlatformOrder) (PlatformResult, error)
	AnnotateOrder(ctx context.Context, externalOrderID string, attributes map[string]string) error
}

// PlatformOrder is the request passed to the order platform.
type PlatformOrder struct {
	Items      []shipping.ItemRef
	Address    shipping.Address
	Buyer      Buyer
	Shipping   *shipping.Rate
	Attributes map[string]string
}

// PlatformResult is the platform's durable answer.
type PlatformResult struct {
	ID         string
	Number     string
	TotalPrice domain.Cents
	Currency   domain.Currency
}

// CommitRequest is one idempotent order request: a shipment group plus the
// buyer and payment facts, under a stable request key.
type CommitRequest struct {
	RequestKey string
	Group      shipping.Group
	Buyer      Buyer
	PaymentRef string
	Attributes map[string]string
}

// Committer creates exactly one external order per request key. The
// idempotency record is written before the external call and backfilled after,
// so a crash in between leaves a reconciliation trail instead of a duplicate
// on retry.
type Committer struct {
	store    Store
	platform Platform
	recon    recon.Recorder
	policy   retry.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewCommitter builds the order committer.
func NewCommitter(store Store, platform Platform, rec recon.Recorder, policy retry.Policy, logger *slog.Logger) *Committer {
	return &Committer{
		store:    store,
		platform: platform,
		recon:    rec,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Commit creates the order for the request, or returns the existing receipt
// when the request key has already been settled.
func (c *Committer) Commit(ctx context.Context, req CommitRequest) (*Receipt, error) {
	if req.RequestKey == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "request key is required")
	}
	if len(req.Group.Items) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "shipment group has no items")
	}

	existing, err := c.store.Find(ctx, req.RequestKey)
	switch {
	case err == nil:
		return c.settleExisting(ctx, existing, req)
	case errors.Is(err, sentinel.ErrNotFound):
		// First time this key is seen; claim it below.
	default:
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load receipt", err)
	}

	rec := &Receipt{
		RequestKey:        req.RequestKey,
		TotalPrice:        req.Group.TotalValue,
		Currency:          groupCurrency(req.Group),
		EstimatedDelivery: estimatedDelivery(req.Group),
		Status:            ReceiptPending,
		CreatedAt:         c.now(),
		UpdatedAt:         c.now(),
	}
	if req.Group.SelectedRate != nil {
		rec.TotalPrice += req.Group.SelectedRate.Price
	}
	if err := c.store.CreateIfAbsent(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Lost the claim race; defer to the winner's record.
			winner, ferr := c.store.Find(ctx, req.RequestKey)
			if ferr != nil {
				return nil, dErrors.Wrap(dErrors.CodeInternal, "load receipt after claim race", ferr)
			}
			return c.settleExisting(ctx, winner, req)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "claim request key", err)
	}

	return c.createExternal(ctx, rec, req)
}

// settleExisting resolves a commit against a previously written record.
func (c *Committer) settleExisting(ctx context.Context, rec *Receipt, req CommitRequest) (*Receipt, error) {
	switch rec.Status {
	case ReceiptCreated:
		return rec, nil
	case ReceiptPending:
		// An earlier attempt claimed the key but its external outcome is
		// unknown (crash after the external call, or a commit still in
		// flight). Creating another external order here could duplicate it;
		// leave a trail for the operator instead.
		entry := recon.NewEntry(recon.KindOrderUnconfirmed, "", rec.RequestKey,
			"commit retried while outcome of earlier attempt is unknown")
		if err := c.recon.Record(ctx, entry); err != nil {
			c.logger.ErrorContext(ctx, "reconciliation record failed",
				"request_key", rec.RequestKey, "error", err)
		}
		return nil, dErrors.New(dErrors.CodeUnavailable,
			"order commit outcome unknown; queued for reconciliation")
	case ReceiptFailed:
		// A settled failure may be retried, but only one caller at a time
		// may re-enter the external call. The failed-to-pending status CAS
		// is the re-claim; losers defer to whoever holds it.
		if err := c.store.ClaimRetry(ctx, rec.RequestKey); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return c.deferToWinner(ctx, rec.RequestKey)
			}
			return nil, dErrors.Wrap(dErrors.CodeInternal, "reclaim request key", err)
		}
		rec.Status = ReceiptPending
		return c.createExternal(ctx, rec, req)
	default:
		return nil, dErrors.Newf(dErrors.CodeInternal, "receipt in unknown status %q", rec.Status)
	}
}

// deferToWinner resolves a commit that lost the retry re-claim race. The
// winner's attempt is still in flight or already settled; either way this
// caller must not place another external order.
func (c *Committer) deferToWinner(ctx context.Context, requestKey string) (*Receipt, error) {
	winner, err := c.store.Find(ctx, requestKey)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load receipt after retry race", err)
	}
	if winner.Status == ReceiptCreated {
		return winner, nil
	}
	return nil, dErrors.New(dErrors.CodeUnavailable,
		"another commit attempt for this request is in flight")
}

// createExternal performs the external order call under the retry policy and
// backfills the receipt with the result.
func (c *Committer) createExternal(ctx context.Context, rec *Receipt, req CommitRequest) (*Receipt, error) {
	attrs := map[string]string{"payment_ref": req.PaymentRef}
	for k, v := range req.Attributes {
		attrs[k] = v
	}

	result, err := retry.Do(ctx, c.policy, dErrors.Retryable, func(ctx context.Context) (PlatformResult, error) {
		rec.Attempts++
		return c.platform.CreateOrder(ctx, PlatformOrder{
			Items:      req.Group.Items,
			Address:    req.Group.Address,
			Buyer:      req.Buyer,
			Shipping:   req.Group.SelectedRate,
			Attributes: attrs,
		})
	})
	if err != nil {
		rec.Status = ReceiptFailed
		if uerr := c.store.Update(ctx, rec); uerr != nil {
			c.logger.ErrorContext(ctx, "receipt failure write failed",
				"request_key", rec.RequestKey, "error", uerr)
		}
		if dErrors.Retryable(err) {
			// Transient failure exhausted its budget; money may be waiting on
			// this order, so surface it to operators.
			entry := recon.NewEntry(recon.KindCommitFailed, "", rec.RequestKey, err.Error())
			if rerr := c.recon.Record(ctx, entry); rerr != nil {
				c.logger.ErrorContext(ctx, "reconciliation record failed",
					"request_key", rec.RequestKey, "error", rerr)
			}
			return nil, dErrors.Wrap(dErrors.CodeUnavailable, "order platform unavailable", err)
		}
		return nil, err
	}

	rec.ExternalOrderID = result.ID
	rec.OrderNumber = result.Number
	if result.TotalPrice > 0 {
		rec.TotalPrice = result.TotalPrice
	}
	if result.Currency != "" {
		rec.Currency = result.Currency
	}
	rec.Status = ReceiptCreated
	if err := c.store.Update(ctx, rec); err != nil {
		// The external order exists; losing the local confirmation must not
		// trigger a duplicate, so leave a trail and still hand back the
		// receipt.
		c.logger.ErrorContext(ctx, "receipt backfill failed",
			"request_key", rec.RequestKey, "external_order_id", result.ID, "error", err)
		entry := recon.NewEntry(recon.KindOrderUnconfirmed, "", rec.RequestKey,
			"external order "+result.ID+" created but local receipt write failed")
		if rerr := c.recon.Record(ctx, entry); rerr != nil {
			c.logger.ErrorContext(ctx, "reconciliation record failed",
				"request_key", rec.RequestKey, "error", rerr)
		}
	}
	c.logger.InfoContext(ctx, "order committed",
		"request_key", rec.RequestKey,
		"external_order_id", rec.ExternalOrderID,
		"order_number", rec.OrderNumber,
		"attempts", rec.Attempts,
	)
	return rec, nil
}

func groupCurrency(g shipping.Group) domain.Currency {
	if len(g.Items) > 0 {
		return g.Items[0].Currency
	}
	return ""
}

func estimatedDelivery(g shipping.Group) time.Time {
	if g.SelectedRate != nil {
		return g.SelectedRate.EstimatedDelivery
	}
	return time.Time{}
}
