package handlers

import (
	"net/http"

	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/pool"
)

// ReportHandler serves account problem reports
type ReportHandler struct {
	pool *pool.Service
}

func NewReportHandler(p *pool.Service) *ReportHandler {
	return &ReportHandler{pool: p}
}

type reportRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	NewSecret *string `json:"new_secret,omitempty"`
	Note      string  `json:"note"`
}

// HandleReport handles POST /accounts/{id}/reports
func (h *ReportHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req reportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rep, err := h.pool.ReportAccount(r.Context(), id, req.Reason, operatorName(r))
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, rep)
}

// HandleList handles GET /reports?unresolved=
func (h *ReportHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	reports, err := h.pool.ListReports(r.Context(), queryBool(r, "unresolved"))
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// HandleResolve handles POST /reports/{id}/resolve
func (h *ReportHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rep, err := h.pool.ResolveReport(r.Context(), id, pool.ResolveRequest{
		NewSecret: req.NewSecret,
		Note:      req.Note,
		Operator:  operatorName(r),
	})
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rep)
}
