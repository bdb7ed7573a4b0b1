package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/slotkeeper/server/internal/middleware"
	"github.com/slotkeeper/server/internal/model"
)

// errorResponse is the body of every error reply
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusForKind maps an error kind to its HTTP status
func statusForKind(kind string) int {
	switch kind {
	case "DuplicateCustomer", "StockDepleted", "AccountInUse", "ReportAlreadyResolved", "DuplicateEmail":
		return http.StatusConflict
	case "AllocationConflict":
		return http.StatusServiceUnavailable
	case "AccountNotFound", "ProfileNotFound", "ReportNotFound", "ChannelNotFound", "AssignmentNotFound":
		return http.StatusNotFound
	case "InvalidRequest", "InvalidPoolState":
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondWithJSON writes v with the given status
func respondWithJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response for a request the handler
// rejected before reaching the pool
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, errorResponse{Error: message, Kind: "InvalidRequest"})
}

// respondWithErr maps an engine error to its status and kind. Internal errors
// are logged and their detail withheld.
func respondWithErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.Kind(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		respondWithJSON(w, status, errorResponse{Error: "internal error", Kind: kind})
		return
	}
	respondWithJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// decodeJSON reads the request body into v, answering 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathUUID parses a UUID route parameter, answering 400 on failure
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// operatorName returns the authenticated operator's name
func operatorName(r *http.Request) string {
	op, _ := middleware.GetOperator(r.Context())
	return op.Name
}

func queryBool(r *http.Request, name string) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
