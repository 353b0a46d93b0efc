package handler

import (
	"wishwell/internal/checkout"
	"wishwell/internal/orders"
	"wishwell/internal/shipping"
)

// PlanRequest is the wire form of a checkout planning request.
type PlanRequest struct {
	CheckoutID       string             `json:"checkout_id"`
	Buyer            orders.Buyer       `json:"buyer"`
	Items            []shipping.ItemRef `json:"items"`
	RecipientAddress shipping.Address   `json:"recipient_address"`
	BuyerAddress     shipping.Address   `json:"buyer_address"`
}

// Cart builds the domain cart from the wire request.
func (r PlanRequest) Cart() checkout.Cart {
	return checkout.Cart{
		CheckoutID:       r.CheckoutID,
		Buyer:            r.Buyer,
		Items:            r.Items,
		RecipientAddress: r.RecipientAddress,
		BuyerAddress:     r.BuyerAddress,
	}
}

// CommitRequest is the wire form of a checkout commit. Groups echo the plan
// with a selected rate filled in per group.
type CommitRequest struct {
	CheckoutID           string             `json:"checkout_id"`
	Buyer                orders.Buyer       `json:"buyer"`
	PaymentRef           string             `json:"payment_ref"`
	Groups               []shipping.Group   `json:"groups"`
	SynchronizedDelivery bool               `json:"synchronized_delivery,omitempty"`
	RecipientAddress     shipping.Address   `json:"recipient_address"`
	BuyerAddress         shipping.Address   `json:"buyer_address"`
	Items                []shipping.ItemRef `json:"items,omitempty"`
}

// Cart builds the domain cart from the wire request.
func (r CommitRequest) Cart() checkout.Cart {
	return checkout.Cart{
		CheckoutID:       r.CheckoutID,
		Buyer:            r.Buyer,
		PaymentRef:       r.PaymentRef,
		Items:            r.Items,
		RecipientAddress: r.RecipientAddress,
		BuyerAddress:     r.BuyerAddress,
	}
}
