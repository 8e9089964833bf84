package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"clickguard/internal/api/dto"
	"clickguard/internal/config"
	"clickguard/internal/support"
	"clickguard/internal/tracking"
)

const defaultMaxBeaconBytes = 64 << 10

func (s *Server) track(w http.ResponseWriter, r *http.Request) {
	maxBytes := config.GetConfig().Tracking.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBeaconBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	var beacon dto.Beacon
	if err := json.NewDecoder(r.Body).Decode(&beacon); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "Payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeTrackError(w, tracking.ErrInvalidPayload)
		return
	}

	// The snippet never waits for the answer, so a closed connection must not
	// abort the writes.
	ctx := context.WithoutCancel(r.Context())

	decision, err := s.tracker.Track(ctx, tracking.Request{
		Beacon:    beacon.Normalize(),
		IP:        support.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeTrackError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TrackResponse{Success: true, Blocked: decision.Blocked})
}

func writeTrackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracking.ErrMissingSiteID), errors.Is(err, tracking.ErrInvalidPayload):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tracking.ErrUnknownSite):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, tracking.ErrRateLimited):
		writeError(w, err.Error(), http.StatusTooManyRequests)
	default:
		log.Error("Beacon processing failed", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}
