package handlers

import (
	"net/http"
	"time"

	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/pool"
	"github.com/slotkeeper/server/internal/repo"
)

// AccountHandler serves provisioning and account reads
type AccountHandler struct {
	pool *pool.Service
}

func NewAccountHandler(p *pool.Service) *AccountHandler {
	return &AccountHandler{pool: p}
}

// createAccountsRequest is the request body for POST /accounts
type createAccountsRequest struct {
	Entries      []pool.AccountEntry `json:"entries"`
	ExpiresAt    time.Time           `json:"expires_at"`
	ProfileCount *int                `json:"profile_count,omitempty"`
}

// importRequest is the request body for POST /accounts/import
type importRequest struct {
	Accounts []pool.LegacyAccount `json:"accounts"`
}

// HandleCreate handles POST /accounts
func (h *AccountHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAccountsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Entries) == 0 {
		respondWithError(w, http.StatusBadRequest, "entries must not be empty")
		return
	}

	res, err := h.pool.CreateAccounts(r.Context(), pool.CreateAccountsRequest{
		Entries:      req.Entries,
		ExpiresAt:    req.ExpiresAt,
		ProfileCount: req.ProfileCount,
		Operator:     operatorName(r),
	})
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

// HandleImport handles POST /accounts/import
func (h *AccountHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.pool.ImportLegacy(r.Context(), req.Accounts, operatorName(r))
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

// HandleList handles GET /accounts?platform=&tier=&in_stock=
func (h *AccountHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var filter repo.AccountFilter
	if v := r.URL.Query().Get("platform"); v != "" {
		p, ok := model.ParsePlatform(v)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "unknown platform "+v)
			return
		}
		filter.Platform = p
	}
	if v := r.URL.Query().Get("tier"); v != "" {
		t, ok := model.ParseTier(v)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "unknown tier "+v)
			return
		}
		filter.Tier = t
	}
	filter.InStock = queryBool(r, "in_stock")

	accounts, err := h.pool.ListAccounts(r.Context(), filter)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// HandleGet handles GET /accounts/{id}
func (h *AccountHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	acc, err := h.pool.GetAccount(r.Context(), id)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, acc)
}

// HandleAssignments handles GET /accounts/{id}/assignments
func (h *AccountHandler) HandleAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	list, err := h.pool.AccountAssignments(r.Context(), id)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	if list == nil {
		list = []model.Assignment{}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"assignments": list})
}

// HandleDelete handles DELETE /accounts/{id}
func (h *AccountHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.pool.DeleteAccount(r.Context(), id, operatorName(r)); err != nil {
		respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
