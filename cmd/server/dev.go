package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"wishwell/internal/orders"
	"wishwell/internal/shipping"
	"wishwell/pkg/domain"
)

// Development stand-ins for the external collaborators. Each one is honest
// about the contract it fakes so the full pipeline can run locally.

type devCatalog struct{}

func newDevCatalog() *devCatalog { return &devCatalog{} }

func (c *devCatalog) ItemSnapshot(_ context.Context, productRef, variantRef string) (shipping.ItemRef, error) {
	return shipping.ItemRef{
		ProductRef:      productRef,
		VariantRef:      variantRef,
		Title:           "Registry item " + productRef,
		Quantity:        1,
		UnitPrice:       domain.Cents(9999),
		UnitWeightGrams: 500,
		Currency:        domain.CurrencyUSD,
		Destination:     shipping.Destination{Kind: shipping.DestinationRecipient},
	}, nil
}

type devRateService struct{}

func newDevRateService() *devRateService { return &devRateService{} }

func (s *devRateService) GetRates(_ context.Context, _ shipping.Address, _ []shipping.ItemRef, totalWeightGrams int) ([]shipping.Rate, error) {
	now := time.Now()
	perKilo := domain.Cents(totalWeightGrams/1000) * 100
	return []shipping.Rate{
		{
			ID:                "dev-ground",
			Title:             "Ground",
			Price:             599 + perKilo,
			DeliveryDays:      5,
			EstimatedDelivery: now.AddDate(0, 0, 5),
		},
		{
			ID:                "dev-express",
			Title:             "Express",
			Price:             1499 + perKilo,
			DeliveryDays:      1,
			EstimatedDelivery: now.AddDate(0, 0, 1),
		},
	}, nil
}

type devPayments struct {
	logger *slog.Logger
}

func newDevPayments(logger *slog.Logger) *devPayments { return &devPayments{logger: logger} }

func (p *devPayments) Reverse(ctx context.Context, paymentRef string, amount domain.Cents) error {
	p.logger.InfoContext(ctx, "dev payment reversed", "payment_ref", paymentRef, "amount", int64(amount))
	return nil
}

type devPlatform struct {
	logger *slog.Logger
}

func newDevPlatform(logger *slog.Logger) *devPlatform { return &devPlatform{logger: logger} }

func (p *devPlatform) CreateOrder(ctx context.Context, req orders.PlatformOrder) (orders.PlatformResult, error) {
	id := uuid.NewString()
	p.logger.InfoContext(ctx, "dev order created", "external_order_id", id, "items", len(req.Items))
	return orders.PlatformResult{
		ID:     id,
		Number: "DEV-" + id[:8],
	}, nil
}

func (p *devPlatform) AnnotateOrder(ctx context.Context, externalOrderID string, attributes map[string]string) error {
	p.logger.InfoContext(ctx, "dev order annotated", "external_order_id", externalOrderID, "attributes", attributes)
	return nil
}

type devNotifier struct {
	logger *slog.Logger
}

func newDevNotifier(logger *slog.Logger) *devNotifier { return &devNotifier{logger: logger} }

func (n *devNotifier) CheckoutConfirmed(ctx context.Context, buyer orders.Buyer, receipts []*orders.Receipt) {
	n.logger.InfoContext(ctx, "dev checkout confirmation sent", "buyer", buyer.Email, "orders", len(receipts))
}
