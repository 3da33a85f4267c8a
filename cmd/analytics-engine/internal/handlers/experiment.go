package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/middleware"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/repository"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/services"
)

type updateStatusRequest struct {
	Status string `json:"status"`
}

// CreateExperiment handles POST /experiments
func (h *Handlers) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req repository.CreateExperimentRequest
	if err := parseJSONRequest(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	exp, err := h.experimentService.CreateExperiment(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to create experiment")
		return
	}

	log.Info().
		Str("experiment_id", exp.ID.String()).
		Str("principal", middleware.GetPrincipal(r.Context())).
		Strs("variants", exp.Variants).
		Msg("Experiment created")

	writeJSONResponse(w, http.StatusCreated, exp)
}

// ListExperiments handles GET /experiments
func (h *Handlers) ListExperiments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := parseIntParam(query.Get("limit"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	offset, err := parseIntParam(query.Get("offset"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid offset parameter")
		return
	}

	experiments, err := h.experimentService.ListExperiments(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err, "Failed to list experiments")
		return
	}
	if experiments == nil {
		experiments = []*repository.Experiment{}
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"experiments": experiments,
		"count":       len(experiments),
	})
}

// GetExperiment handles GET /experiments/{experimentId}
func (h *Handlers) GetExperiment(w http.ResponseWriter, r *http.Request) {
	id, ok := experimentIDParam(w, r)
	if !ok {
		return
	}

	exp, err := h.experimentService.GetExperiment(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get experiment")
		return
	}

	writeJSONResponse(w, http.StatusOK, exp)
}

// UpdateExperimentStatus handles PUT /experiments/{experimentId}/status
func (h *Handlers) UpdateExperimentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := experimentIDParam(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := parseJSONRequest(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	exp, err := h.experimentService.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, err, "Failed to update experiment status")
		return
	}

	log.Info().
		Str("experiment_id", id.String()).
		Str("principal", middleware.GetPrincipal(r.Context())).
		Str("status", exp.Status).
		Msg("Experiment status updated")

	writeJSONResponse(w, http.StatusOK, exp)
}

// GetExperimentAnalysis handles GET /experiments/{experimentId}/analysis.
// Without start_time and end_time the experiment is analyzed from its start
// until now.
func (h *Handlers) GetExperimentAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := experimentIDParam(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	startTime, err := parseTimeParam(query.Get("start_time"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid start_time parameter")
		return
	}
	endTime, err := parseTimeParam(query.Get("end_time"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid end_time parameter")
		return
	}

	req := &services.ExperimentAnalysisRequest{
		ExperimentID: id,
		Refresh:      query.Get("refresh") == "true",
	}

	switch {
	case startTime.IsZero() && endTime.IsZero():
	case startTime.IsZero() || endTime.IsZero():
		writeErrorResponse(w, http.StatusBadRequest, "start_time and end_time must be given together")
		return
	default:
		req.TimeRange = &repository.TimeRange{Start: startTime, End: endTime}
	}

	log.Info().
		Str("experiment_id", id.String()).
		Str("principal", middleware.GetPrincipal(r.Context())).
		Bool("refresh", req.Refresh).
		Msg("Analyzing experiment")

	analysis, err := h.experimentService.AnalyzeExperiment(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "Failed to analyze experiment")
		return
	}

	writeJSONResponse(w, http.StatusOK, analysis)
}

func experimentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "experimentId"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid experiment id")
		return uuid.Nil, false
	}
	return id, true
}

// parseTimeParam accepts RFC3339, a few common layouts or Unix seconds.
// An empty string yields the zero time.
func parseTimeParam(timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, nil
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return t.UTC(), nil
		}
	}

	if timestamp, err := strconv.ParseInt(timeStr, 10, 64); err == nil {
		return time.Unix(timestamp, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized time %q", timeStr)
}

func parseIntParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
