// Package handler wires the split-shipment checkout endpoints to the checkout
// service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"wishwell/internal/checkout"
	"wishwell/internal/platform/middleware"
	"wishwell/internal/shipping"
	"wishwell/pkg/platform/httputil"
)

// Service defines the checkout operations the handler exposes.
type Service interface {
	Plan(ctx context.Context, cart checkout.Cart) (*checkout.Plan, error)
	Commit(ctx context.Context, cart checkout.Cart, groups []shipping.Group, synchronized bool) (*checkout.Result, error)
}

// Handler wires checkout endpoints to the checkout service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a checkout handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts checkout endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/checkout/plan", h.HandlePlan)
	r.Post("/checkout/commit", h.HandleCommit)
}

// HandlePlan handles POST /checkout/plan requests.
func (h *Handler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.Decode[PlanRequest](w, r)
	if !ok {
		return
	}

	plan, err := h.service.Plan(ctx, req.Cart())
	if err != nil {
		h.logger.WarnContext(ctx, "checkout plan failed",
			"request_id", requestID,
			"checkout_id", req.CheckoutID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "checkout planned",
		"request_id", requestID,
		"checkout_id", plan.CheckoutID,
		"groups", len(plan.Groups),
	)
	httputil.WriteJSON(w, http.StatusOK, plan)
}

// HandleCommit handles POST /checkout/commit requests.
func (h *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	req, ok := httputil.Decode[CommitRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.Commit(ctx, req.Cart(), req.Groups, req.SynchronizedDelivery)
	if err != nil {
		h.logger.ErrorContext(ctx, "checkout commit failed",
			"request_id", requestID,
			"checkout_id", req.CheckoutID,
			"error", err,
		)
		if result != nil {
			// Partial commits return their receipts so the client can retry
			// the same checkout id for the rest.
			httputil.WriteJSON(w, http.StatusServiceUnavailable, result)
			return
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "checkout committed",
		"request_id", requestID,
		"checkout_id", result.CheckoutID,
		"orders", len(result.Receipts),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, result)
}
