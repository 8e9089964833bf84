package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"clickguard/internal/analytics"
	"clickguard/internal/auth"
	"clickguard/internal/metrics"
	"clickguard/internal/tracking"
	"clickguard/internal/verification"
)

const shutdownTimeout = 10 * time.Second

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server holds the collaborators the HTTP handlers call into.
type Server struct {
	tracker    *tracking.Tracker
	verifier   *verification.Verifier
	aggregator *analytics.Aggregator
	now        func() time.Time
}

func New(tracker *tracking.Tracker, verifier *verification.Verifier, aggregator *analytics.Aggregator) *Server {
	if aggregator == nil {
		aggregator = analytics.NewAggregator()
	}
	return &Server{
		tracker:    tracker,
		verifier:   verifier,
		aggregator: aggregator,
		now:        time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", healthCheck)
	r.Get("/version", getVersion)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/track", s.track)
	// The preflight is normally answered by the cors middleware.
	r.Options("/track", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/register", registerUser)
	r.Post("/login", loginUser)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/domains", listSites)
		r.Post("/domains", createSite)
		r.Route("/domains/{id}", func(r chi.Router) {
			r.Delete("/", deleteSite)
			r.Post("/verify", s.verifySite)
			r.Get("/analytics", s.siteAnalytics)
			r.Get("/visitors", listVisitors)
			r.Get("/fraud-events", listFraudEvents)
			r.Get("/blocked-ips", listBlockedIPs)
			r.Post("/blocked-ips", blockIP)
			r.Delete("/blocked-ips/{blockedId}", unblockIP)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.IsAdmin)
		r.Get("/settings", getGlobalSettings)
		r.Post("/settings", saveSettings)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug(
			"HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// OpenRoutes serves handler until ctx is cancelled, then drains in-flight
// requests.
func OpenRoutes(ctx context.Context, port int, handler http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting clickguard on port :%d", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	}
}
