// Package checkout drives the split-shipment purchase flow: partition the
// cart by resolved destination, quote each shipment, then commit one
// idempotent order per shipment group.
package checkout

import (
	"context"
	"log/slog"
	"time"

	"wishwell/internal/orders"
	"wishwell/internal/shipping"
	dErrors "wishwell/pkg/domain-errors"
)

// Committer places one idempotent order per shipment group.
type Committer interface {
	Commit(ctx context.Context, req orders.CommitRequest) (*orders.Receipt, error)
}

// Delivery aligns delivery schedules across a checkout's shipments.
type Delivery interface {
	Coordinate(ctx context.Context, receipts []*orders.Receipt, synchronized bool) bool
}

// Notifier sends the buyer their confirmation. Best effort.
type Notifier interface {
	CheckoutConfirmed(ctx context.Context, buyer orders.Buyer, receipts []*orders.Receipt)
}

// Cart is the checkout request before grouping.
type Cart struct {
	CheckoutID       string
	Buyer            orders.Buyer
	PaymentRef       string
	Items            []shipping.ItemRef
	RecipientAddress shipping.Address
	BuyerAddress     shipping.Address
}

// Plan is the quoted split: one entry per shipment group with its candidate
// rates, ready for the buyer to pick from.
type Plan struct {
	CheckoutID string           `json:"checkout_id"`
	Groups     []shipping.Group `json:"groups"`
}

// Result is the outcome of a commit. Receipts holds every settled order;
// Failures maps group keys that could not be committed to their error. A
// retried commit with the same checkout id resumes where this one stopped.
type Result struct {
	CheckoutID string            `json:"checkout_id"`
	Receipts   []*orders.Receipt `json:"receipts"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// Service is the checkout orchestrator.
type Service struct {
	quoter   *shipping.Quoter
	orders   Committer
	delivery Delivery
	notifier Notifier
	logger   *slog.Logger
}

// NewService builds the checkout service. delivery and notifier may be nil.
func NewService(quoter *shipping.Quoter, committer Committer, delivery Delivery, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		quoter:   quoter,
		orders:   committer,
		delivery: delivery,
		notifier: notifier,
		logger:   logger,
	}
}

// Plan partitions the cart into shipment groups and quotes each one. The
// grouping is deterministic, so re-planning the same cart yields the same
// group keys and the commit below stays idempotent.
func (s *Service) Plan(ctx context.Context, cart Cart) (*Plan, error) {
	if cart.CheckoutID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "checkout id is required")
	}
	groups, err := shipping.GroupItems(cart.Items, cart.RecipientAddress, cart.BuyerAddress)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		groups[i].CandidateRates = s.quoter.Quote(ctx, groups[i].Address, groups[i].Items, groups[i].TotalWeightGrams)
	}
	return &Plan{CheckoutID: cart.CheckoutID, Groups: groups}, nil
}

// Commit places one order per group. Every group must carry a selected rate.
// Groups are committed independently: a failure in one does not roll back the
// others, and retrying the same checkout id re-uses the receipts already
// settled.
func (s *Service) Commit(ctx context.Context, cart Cart, groups []shipping.Group, synchronized bool) (*Result, error) {
	if cart.CheckoutID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "checkout id is required")
	}
	if len(groups) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no shipment groups to commit")
	}
	for _, g := range groups {
		if g.SelectedRate == nil {
			return nil, dErrors.Newf(dErrors.CodeValidation,
				"group %s has no selected shipping rate", g.GroupKey)
		}
	}

	result := &Result{CheckoutID: cart.CheckoutID, Failures: make(map[string]string)}
	for _, g := range groups {
		receipt, err := s.orders.Commit(ctx, orders.CommitRequest{
			RequestKey: orders.RequestKey(cart.CheckoutID, g.GroupKey),
			Group:      g,
			Buyer:      cart.Buyer,
			PaymentRef: cart.PaymentRef,
			Attributes: map[string]string{"source": "checkout", "checkout_id": cart.CheckoutID},
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "group commit failed",
				"checkout_id", cart.CheckoutID, "group_key", g.GroupKey, "error", err)
			result.Failures[g.GroupKey] = err.Error()
			continue
		}
		result.Receipts = append(result.Receipts, receipt)
	}

	if len(result.Failures) > 0 {
		return result, dErrors.Newf(dErrors.CodeUnavailable,
			"%d of %d shipments failed to commit; retry with the same checkout id",
			len(result.Failures), len(groups))
	}

	if s.delivery != nil {
		s.delivery.Coordinate(ctx, result.Receipts, synchronized)
	}
	if s.notifier != nil {
		// Confirmation must not block or fail the purchase.
		receipts := result.Receipts
		buyer := cart.Buyer
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			s.notifier.CheckoutConfirmed(nctx, buyer, receipts)
		}()
	}
	return result, nil
}
