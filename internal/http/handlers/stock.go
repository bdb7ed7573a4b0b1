package handlers

import (
	"net/http"

	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/pool"
)

// StockHandler serves stock counts
type StockHandler struct {
	pool *pool.Service
}

func NewStockHandler(p *pool.Service) *StockHandler {
	return &StockHandler{pool: p}
}

type stockResponse struct {
	Tier      model.Tier     `json:"tier"`
	Platform  model.Platform `json:"platform,omitempty"`
	Available int            `json:"available"`
}

// HandleCount handles GET /stock?tier=&platform=
func (h *StockHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	tier := model.Tier(r.URL.Query().Get("tier"))
	platform := model.Platform(r.URL.Query().Get("platform"))
	if tier == "" {
		respondWithError(w, http.StatusBadRequest, "tier is required")
		return
	}

	n, err := h.pool.AvailableCountFor(r.Context(), platform, tier)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stockResponse{Tier: tier, Platform: platform, Available: n})
}

// HandleSummary handles GET /stock/summary
func (h *StockHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	lines, err := h.pool.Summary(r.Context())
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"lines": lines})
}
