package shipping

import (
	"time"

	"wishwell/pkg/domain"
)

// DestinationKind says where a cart item should be delivered.
type DestinationKind string

const (
	// DestinationRecipient ships to the registry owner.
	DestinationRecipient DestinationKind = "recipient"
	// DestinationGiver ships to the buyer.
	DestinationGiver DestinationKind = "giver"
	// DestinationCustom ships to an address attached to the item itself.
	DestinationCustom DestinationKind = "custom"
)

// Destination resolves to a concrete address during grouping. Custom is
// required when Kind is DestinationCustom and ignored otherwise.
type Destination struct {
	Kind   DestinationKind `json:"kind"`
	Custom *Address        `json:"custom,omitempty"`
}

// ItemRef is a read-only snapshot of a purchasable unit taken at checkout or
// campaign-start time. Later catalog changes never alter an in-flight group or
// a running campaign.
type ItemRef struct {
	ProductRef      string          `json:"product_ref"`
	VariantRef      string          `json:"variant_ref,omitempty"`
	Title           string          `json:"title"`
	Quantity        int             `json:"quantity"`
	UnitPrice       domain.Cents    `json:"unit_price"`
	UnitWeightGrams int             `json:"unit_weight_grams"`
	Currency        domain.Currency `json:"currency"`
	Destination     Destination     `json:"destination"`
}

// Value is the line total for the snapshot.
func (i ItemRef) Value() domain.Cents {
	return i.UnitPrice * domain.Cents(i.Quantity)
}

// WeightGrams is the line weight for the snapshot.
func (i ItemRef) WeightGrams() int {
	return i.UnitWeightGrams * i.Quantity
}

// Rate is one shipping option for a group.
type Rate struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	Price             domain.Cents `json:"price"`
	DeliveryDays      int          `json:"delivery_days"`
	EstimatedDelivery time.Time    `json:"estimated_delivery"`
	// Fallback marks a fixed quote served because the live rate service was
	// unavailable.
	Fallback bool `json:"fallback"`
}

// Group is the partition of a cart's items sharing one resolved delivery
// address. GroupKey derives from the address identity, not item order, so
// regrouping the same cart is stable.
type Group struct {
	GroupKey         string       `json:"group_key"`
	Address          Address      `json:"address"`
	Items            []ItemRef    `json:"items"`
	TotalWeightGrams int          `json:"total_weight_grams"`
	TotalValue       domain.Cents `json:"total_value"`
	CandidateRates   []Rate       `json:"candidate_rates,omitempty"`
	SelectedRate     *Rate        `json:"selected_rate,omitempty"`
}
