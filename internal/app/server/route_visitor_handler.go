package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"clickguard/internal/api/dto"
	"clickguard/internal/database"
	"clickguard/internal/domain"
)

// pagination reads limit and offset; malformed values fall back to defaults.
func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return database.ClampPage(limit, offset)
}

func listVisitors(w http.ResponseWriter, r *http.Request) {
	site, ok := ownedSite(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	visitors, total, err := database.ListVisitorEvents(r.Context(), site.ID, limit, offset)
	if err != nil {
		writeSiteError(w, err)
		return
	}
	if visitors == nil {
		visitors = []domain.VisitorEvent{}
	}

	writeJSON(w, http.StatusOK, dto.VisitorsPage{Visitors: visitors, Total: total, Limit: limit, Offset: offset})
}

func listFraudEvents(w http.ResponseWriter, r *http.Request) {
	site, ok := ownedSite(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	events, total, err := database.ListFraudEvents(r.Context(), site.ID, limit, offset)
	if err != nil {
		writeSiteError(w, err)
		return
	}
	if events == nil {
		events = []domain.FraudEvent{}
	}

	writeJSON(w, http.StatusOK, dto.FraudEventsPage{FraudEvents: events, Total: total, Limit: limit, Offset: offset})
}

func listBlockedIPs(w http.ResponseWriter, r *http.Request) {
	userID, siteID, ok := siteRequest(w, r)
	if !ok {
		return
	}

	blocked, err := database.ListBlockedIPs(r.Context(), userID, siteID)
	if err != nil {
		writeSiteError(w, err)
		return
	}
	if blocked == nil {
		blocked = []domain.BlockedIP{}
	}
	writeJSON(w, http.StatusOK, blocked)
}

func blockIP(w http.ResponseWriter, r *http.Request) {
	userID, siteID, ok := siteRequest(w, r)
	if !ok {
		return
	}

	var req dto.BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	blocked, err := database.BlockIPManually(r.Context(), userID, siteID, req.IP, req.Reason)
	if err != nil {
		writeSiteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, blocked)
}

func unblockIP(w http.ResponseWriter, r *http.Request) {
	userID, siteID, ok := siteRequest(w, r)
	if !ok {
		return
	}

	blockedID, err := strconv.ParseUint(chi.URLParam(r, "blockedId"), 10, 64)
	if err != nil || blockedID == 0 {
		writeError(w, database.ErrBlockedIPMissing.Error(), http.StatusNotFound)
		return
	}

	if err := database.UnblockIP(r.Context(), userID, siteID, blockedID); err != nil {
		writeSiteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
