package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/middleware"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/repository"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/services"
	"github.com/Sidd-007/experiment-analytics/pkg/stats"
)

const maxRequestBody = 1 << 20

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

type Handlers struct {
	experimentService services.ExperimentService
	statsService      services.StatisticsService
	AuthMiddleware    *middleware.AuthMiddleware
	checks            map[string]ReadinessCheck
}

func NewHandlers(
	experimentService services.ExperimentService,
	statsService services.StatisticsService,
	authMiddleware *middleware.AuthMiddleware,
	checks map[string]ReadinessCheck,
) *Handlers {
	return &Handlers{
		experimentService: experimentService,
		statsService:      statsService,
		AuthMiddleware:    authMiddleware,
		checks:            checks,
	}
}

// Health check endpoints
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "analytics-engine",
		"version": "1.0.0",
	})
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			log.Warn().Err(err).Str("dependency", name).Msg("Readiness check failed")
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "connected"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSONResponse(w, status, map[string]interface{}{
		"status": state,
		"checks": results,
	})
}

// Helper functions
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":   true,
		"message": message,
		"status":  statusCode,
	})
}

// writeServiceError maps service and engine errors onto HTTP statuses.
// Unexpected errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
		writeErrorResponse(w, status, msg)
		return
	}
	writeErrorResponse(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, stats.ErrInvalidParameter),
		errors.Is(err, stats.ErrDomain),
		errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, stats.ErrInsufficientData),
		errors.Is(err, stats.ErrDivisionByZero):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseJSONRequest(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
