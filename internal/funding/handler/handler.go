// Package handler wires the funding ledger endpoints to the funding service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"wishwell/internal/funding"
	"wishwell/internal/platform/middleware"
	"wishwell/pkg/domain"
	"wishwell/pkg/platform/httputil"
)

// Service defines the funding operations the handler exposes.
type Service interface {
	StartCampaign(ctx context.Context, req funding.StartCampaignRequest) (*funding.Campaign, error)
	Contribute(ctx context.Context, req funding.ContributeRequest) (*funding.Contribution, error)
	Cancel(ctx context.Context, id domain.CampaignID) error
	Progress(ctx context.Context, id domain.CampaignID) (*funding.Progress, error)
	Campaign(ctx context.Context, id domain.CampaignID) (*funding.Campaign, error)
}

// Handler wires campaign endpoints to the funding service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a funding handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts campaign endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/campaigns", h.HandleStartCampaign)
	r.Get("/campaigns/{campaignID}", h.HandleGetCampaign)
	r.Get("/campaigns/{campaignID}/progress", h.HandleProgress)
	r.Post("/campaigns/{campaignID}/contributions", h.HandleContribute)
	r.Post("/campaigns/{campaignID}/cancel", h.HandleCancel)
}

// HandleStartCampaign handles POST /campaigns requests.
func (h *Handler) HandleStartCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.Decode[StartCampaignRequest](w, r)
	if !ok {
		return
	}
	domainReq, err := req.ToDomain()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	campaign, err := h.service.StartCampaign(ctx, domainReq)
	if err != nil {
		h.logger.ErrorContext(ctx, "campaign start failed",
			"request_id", requestID,
			"product_ref", req.ProductRef,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "campaign started",
		"request_id", requestID,
		"campaign_id", campaign.ID.String(),
		"target", int64(campaign.TargetAmount),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromCampaign(campaign))
}

// HandleContribute handles POST /campaigns/{campaignID}/contributions requests.
func (h *Handler) HandleContribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	campaignID, err := domain.ParseCampaignID(chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[ContributeRequest](w, r)
	if !ok {
		return
	}

	contribution, err := h.service.Contribute(ctx, funding.ContributeRequest{
		CampaignID:    campaignID,
		Amount:        domain.Cents(req.AmountCents),
		ContributorID: req.ContributorID,
		Anonymous:     req.Anonymous,
		PaymentRef:    req.PaymentRef,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "contribution rejected",
			"request_id", requestID,
			"campaign_id", campaignID.String(),
			"amount", req.AmountCents,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "contribution admitted",
		"request_id", requestID,
		"campaign_id", campaignID.String(),
		"contribution_id", contribution.ID.String(),
		"amount", int64(contribution.Amount),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromContribution(contribution))
}

// HandleGetCampaign handles GET /campaigns/{campaignID} requests.
func (h *Handler) HandleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := domain.ParseCampaignID(chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	campaign, err := h.service.Campaign(r.Context(), campaignID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromCampaign(campaign))
}

// HandleProgress handles GET /campaigns/{campaignID}/progress requests.
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	campaignID, err := domain.ParseCampaignID(chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	progress, err := h.service.Progress(r.Context(), campaignID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, progress)
}

// HandleCancel handles POST /campaigns/{campaignID}/cancel requests.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	campaignID, err := domain.ParseCampaignID(chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Cancel(ctx, campaignID); err != nil {
		h.logger.WarnContext(ctx, "campaign cancel failed",
			"request_id", middleware.GetRequestID(ctx),
			"campaign_id", campaignID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
