package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"risk-sentinel/internal/alerting"
	"risk-sentinel/internal/disclosure"
	"risk-sentinel/internal/registry"
	"risk-sentinel/internal/version"
)

// VerifyFunc resolves an address to a fresh verification result.
type VerifyFunc func(ctx context.Context, address string) (registry.VerificationResult, error)

// Status describes agent health for the /health endpoint.
type Status struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	CycleCount  uint64 `json:"cycleCount"`
	AlertCount  int    `json:"alertCount"`
	Disclosures int    `json:"disclosures"`
	SigningMode string `json:"signingMode"`
}

// StatusFunc reports the current agent status.
type StatusFunc func() Status

// Server exposes the read-only alert and audit surface over HTTP.
type Server struct {
	addr        string
	alerts      *alerting.Store
	disclosures *disclosure.Log
	verify      VerifyFunc
	status      StatusFunc
	logger      zerolog.Logger
}

// NewServer constructs the API server.
func NewServer(addr string, alerts *alerting.Store, disclosures *disclosure.Log, verify VerifyFunc, status StatusFunc, logger zerolog.Logger) *Server {
	return &Server{
		addr:        addr,
		alerts:      alerts,
		disclosures: disclosures,
		verify:      verify,
		status:      status,
		logger:      logger.With().Str("component", "api").Logger(),
	}
}

// Handler builds the route table. Split from Start so tests can drive
// it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /alerts", s.handleAlerts)
	mux.HandleFunc("GET /alerts/stats", s.handleAlertStats)
	mux.HandleFunc("GET /alerts/high", s.handleHighRisk)
	mux.HandleFunc("GET /alerts/{address}", s.handleAlertsByAddress)
	mux.HandleFunc("GET /verify/{address}", s.handleVerify)
	mux.HandleFunc("GET /disclosure", s.handleDisclosure)
	return withCORS(mux)
}

// withCORS allows cross-origin reads; the surface is read-only.
func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

// Start serves until the context is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("api server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := Status{Status: "ok", Version: version.Version}
	if s.status != nil {
		status = s.status()
		if status.Status == "" {
			status.Status = "ok"
		}
		if status.Version == "" {
			status.Version = version.Version
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if level := r.URL.Query().Get("level"); level != "" {
		writeJSON(w, http.StatusOK, s.alerts.ByLevel(level))
		return
	}
	writeJSON(w, http.StatusOK, s.alerts.Recent(limit))
}

func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.alerts.GetStats())
}

func (s *Server) handleHighRisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.alerts.HighRisk())
}

func (s *Server) handleAlertsByAddress(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	alerts := s.alerts.ByAddress(address)
	if len(alerts) == 0 {
		writeError(w, http.StatusNotFound, "no alerts recorded for address")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if s.verify == nil {
		writeError(w, http.StatusServiceUnavailable, "verification not configured")
		return
	}

	address := r.PathValue("address")
	result, err := s.verify(r.Context(), address)
	if err != nil {
		s.logger.Error().Err(err).Str("address", address).Msg("verification failed")
		writeError(w, http.StatusBadGateway, "verification failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDisclosure(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("full") == "true" {
		entries, err := s.disclosures.History()
		if err != nil {
			s.logger.Error().Err(err).Msg("disclosure history read failed")
			writeError(w, http.StatusInternalServerError, "disclosure history unavailable")
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.disclosures.Recent(limit))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
