package orders

import (
	"time"

	"wishwell/pkg/domain"
)

// ReceiptStatus is the idempotency record state. A pending record is claimed
// but its external outcome is unknown; created and failed are settled.
type ReceiptStatus string

const (
	ReceiptPending ReceiptStatus = "pending"
	ReceiptCreated ReceiptStatus = "created"
	ReceiptFailed  ReceiptStatus = "failed"
)

// Receipt is the durable result of one logical order request. At most one
// non-failed receipt exists per RequestKey for the lifetime of that key.
type Receipt struct {
	RequestKey        string          `json:"request_key"`
	ExternalOrderID   string          `json:"external_order_id,omitempty"`
	OrderNumber       string          `json:"order_number,omitempty"`
	TotalPrice        domain.Cents    `json:"total_price"`
	Currency          domain.Currency `json:"currency"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
	Status            ReceiptStatus   `json:"status"`
	Attempts          int             `json:"attempts"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Buyer identifies who pays for an order.
type Buyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RequestKey derives the idempotency key for one shipment group within one
// logical purchase (a checkout id or a campaign id). Stable across retries.
func RequestKey(scopeID, groupKey string) string {
	return scopeID + ":" + groupKey
}
