package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"wishwell/internal/recon"
	"wishwell/pkg/platform/httputil"
)

const reconDefaultLimit = 100

// ReconHandler exposes the operator reconciliation queue read side.
type ReconHandler struct {
	store recon.Store
}

// NewReconHandler builds the reconciliation handler.
func NewReconHandler(store recon.Store) *ReconHandler {
	return &ReconHandler{store: store}
}

// Register mounts the reconciliation endpoints on the router.
func (h *ReconHandler) Register(r chi.Router) {
	r.Get("/admin/reconciliation", h.HandleList)
}

// HandleList handles GET /admin/reconciliation requests.
func (h *ReconHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := reconDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.store.List(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
