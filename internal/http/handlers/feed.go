package handlers

import (
	"net/http"

	"github.com/slotkeeper/server/internal/activity"
	"github.com/slotkeeper/server/internal/channel"
	"github.com/slotkeeper/server/internal/notify"
)

// FeedHandler serves the read-only collaborator views: channels, warnings
// and the activity snapshot.
type FeedHandler struct {
	channels *channel.Registry
	checker  *notify.Checker
	bus      *activity.Bus
}

func NewFeedHandler(channels *channel.Registry, checker *notify.Checker, bus *activity.Bus) *FeedHandler {
	return &FeedHandler{channels: channels, checker: checker, bus: bus}
}

// HandleChannels handles GET /channels
func (h *FeedHandler) HandleChannels(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{"channels": h.channels.List()})
}

// HandleWarnings handles GET /warnings
func (h *FeedHandler) HandleWarnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.checker.Warnings(r.Context())
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"warnings": warnings})
}

// HandleActivity handles GET /activity
func (h *FeedHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{"entries": h.bus.Snapshot()})
}
