package orders

import (
	"context"
	"log/slog"
	"time"
)

// Annotator pushes delivery attributes onto an already-created external order.
type Annotator interface {
	AnnotateOrder(ctx context.Context, externalOrderID string, attributes map[string]string) error
}

// Coordinator aligns the delivery schedule across the shipments of one
// purchase. Annotation is best effort: the orders already exist and money has
// moved, so a failed annotation is logged, never propagated.
type Coordinator struct {
	annotator Annotator
	logger    *slog.Logger
}

// NewCoordinator builds a delivery coordinator.
func NewCoordinator(annotator Annotator, logger *slog.Logger) *Coordinator {
	return &Coordinator{annotator: annotator, logger: logger}
}

// Coordinate annotates each created receipt with its delivery plan. When
// synchronized is set, every shipment is held until the latest estimated
// delivery among them so the recipient gets one arrival instead of a trickle.
// Returns true when every annotation succeeded.
func (c *Coordinator) Coordinate(ctx context.Context, receipts []*Receipt, synchronized bool) bool {
	var holdUntil time.Time
	if synchronized {
		for _, r := range receipts {
			if r.Status == ReceiptCreated && r.EstimatedDelivery.After(holdUntil) {
				holdUntil = r.EstimatedDelivery
			}
		}
	}

	ok := true
	for _, r := range receipts {
		if r.Status != ReceiptCreated || r.ExternalOrderID == "" {
			continue
		}
		attrs := map[string]string{
			"delivery_mode": "independent",
		}
		if synchronized && !holdUntil.IsZero() {
			attrs["delivery_mode"] = "synchronized"
			attrs["hold_until"] = holdUntil.Format(time.RFC3339)
		}
		if err := c.annotator.AnnotateOrder(ctx, r.ExternalOrderID, attrs); err != nil {
			c.logger.WarnContext(ctx, "delivery annotation failed",
				"external_order_id", r.ExternalOrderID, "error", err)
			ok = false
		}
	}
	return ok
}
