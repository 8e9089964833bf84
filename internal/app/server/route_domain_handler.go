package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"clickguard/internal/api/dto"
	"clickguard/internal/auth"
	"clickguard/internal/config"
	"clickguard/internal/database"
	"clickguard/internal/domain"
	"clickguard/internal/verification"
)

func toSiteResponse(site domain.TrackedSite, snippetBase string) dto.SiteResponse {
	return dto.SiteResponse{
		ID:         site.ID,
		SiteID:     site.PublicID,
		Domain:     site.Domain,
		Verified:   site.Verified,
		VerifiedAt: site.VerifiedAt,
		CreatedAt:  site.CreatedAt,
		Snippet:    verification.Snippet(snippetBase, site.PublicID),
	}
}

func listSites(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserIDFromRequest(r)
	if err != nil {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sites, err := database.ListSites(r.Context(), userID)
	if err != nil {
		writeSiteError(w, err)
		return
	}

	snippetBase := config.GetConfig().SnippetBaseURL
	out := make([]dto.SiteResponse, 0, len(sites))
	for _, site := range sites {
		out = append(out, toSiteResponse(site, snippetBase))
	}
	writeJSON(w, http.StatusOK, out)
}

func createSite(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserIDFromRequest(r)
	if err != nil {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req dto.CreateSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	site, err := database.CreateSite(r.Context(), userID, req.Domain)
	if err != nil {
		writeSiteError(w, err)
		return
	}

	log.Info("Site registered", "site_id", site.ID, "domain", site.Domain, "user_id", userID)
	writeJSON(w, http.StatusCreated, toSiteResponse(*site, config.GetConfig().SnippetBaseURL))
}

func deleteSite(w http.ResponseWriter, r *http.Request) {
	userID, siteID, ok := siteRequest(w, r)
	if !ok {
		return
	}

	if err := database.DeleteSite(r.Context(), userID, siteID); err != nil {
		writeSiteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) verifySite(w http.ResponseWriter, r *http.Request) {
	site, ok := ownedSite(w, r)
	if !ok {
		return
	}

	result, err := s.verifier.Verify(r.Context(), site)
	if err != nil {
		writeSiteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.VerificationResponse{Verified: result.Verified, Message: result.Message})
}

func (s *Server) siteAnalytics(w http.ResponseWriter, r *http.Request) {
	site, ok := ownedSite(w, r)
	if !ok {
		return
	}

	summary, err := s.aggregator.Summary(r.Context(), site.ID, s.now())
	if err != nil {
		writeSiteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// siteRequest resolves the caller and the {id} path parameter. It writes the
// error response itself when ok is false.
func siteRequest(w http.ResponseWriter, r *http.Request) (userID uint, siteID uint64, ok bool) {
	userID, err := auth.GetUserIDFromRequest(r)
	if err != nil {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return 0, 0, false
	}

	siteID, err = strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || siteID == 0 {
		writeError(w, database.ErrSiteNotFound.Error(), http.StatusNotFound)
		return 0, 0, false
	}
	return userID, siteID, true
}

func ownedSite(w http.ResponseWriter, r *http.Request) (*domain.TrackedSite, bool) {
	userID, siteID, ok := siteRequest(w, r)
	if !ok {
		return nil, false
	}

	site, err := database.GetOwnedSite(r.Context(), userID, siteID)
	if err != nil {
		writeSiteError(w, err)
		return nil, false
	}
	return site, true
}

func writeSiteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrInvalidDomain),
		errors.Is(err, database.ErrInvalidIP):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, database.ErrSiteExists),
		errors.Is(err, database.ErrIPAlreadyBlocked):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, database.ErrSiteNotFound),
		errors.Is(err, database.ErrBlockedIPMissing):
		writeError(w, err.Error(), http.StatusNotFound)
	default:
		log.Error("Site request failed", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}
