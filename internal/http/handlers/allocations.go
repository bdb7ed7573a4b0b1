package handlers

import (
	"net/http"
	"strconv"

	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/pool"
)

// AllocationHandler serves allocations and the assignment ledger
type AllocationHandler struct {
	pool *pool.Service
}

func NewAllocationHandler(p *pool.Service) *AllocationHandler {
	return &AllocationHandler{pool: p}
}

// allocateRequest is the request body for POST /allocations
type allocateRequest struct {
	Platform  string `json:"platform"`
	Tier      string `json:"tier"`
	Customer  string `json:"customer"`
	ChannelID string `json:"channel_id"`
}

// HandleAllocate handles POST /allocations
func (h *AllocationHandler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	alloc, err := h.pool.Allocate(r.Context(), pool.AllocateRequest{
		Platform:  model.Platform(req.Platform),
		Tier:      model.Tier(req.Tier),
		Customer:  req.Customer,
		Operator:  operatorName(r),
		ChannelID: req.ChannelID,
	})
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, alloc)
}

// HandleAssignments handles GET /assignments?customer=&limit=
func (h *AllocationHandler) HandleAssignments(w http.ResponseWriter, r *http.Request) {
	if customer := r.URL.Query().Get("customer"); customer != "" {
		a, err := h.pool.FindByCustomer(r.Context(), customer)
		if err != nil {
			respondWithErr(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, a)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	list, err := h.pool.Assignments(r.Context(), limit)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"assignments": list})
}
