package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/middleware"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/services"
)

// PlanSampleSize handles POST /stats/sample-size
func (h *Handlers) PlanSampleSize(w http.ResponseWriter, r *http.Request) {
	var req services.SampleSizeRequest
	if err := parseJSONRequest(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.statsService.PlanSampleSize(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to plan sample size")
		return
	}

	writeJSONResponse(w, http.StatusOK, plan)
}

// TestSignificance handles POST /stats/significance
func (h *Handlers) TestSignificance(w http.ResponseWriter, r *http.Request) {
	var req services.SignificanceRequest
	if err := parseJSONRequest(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.statsService.TestSignificance(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to test significance")
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// AnalyzePower handles POST /stats/power
func (h *Handlers) AnalyzePower(w http.ResponseWriter, r *http.Request) {
	var req services.PowerRequest
	if err := parseJSONRequest(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.statsService.AnalyzePower(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to analyze power")
		return
	}

	writeJSONResponse(w, http.StatusOK, report)
}

// ProjectImpact handles POST /stats/impact
func (h *Handlers) ProjectImpact(w http.ResponseWriter, r *http.Request) {
	var req services.ImpactRequest
	if err := parseJSONRequest(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	impact, err := h.statsService.ProjectImpact(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to project business impact")
		return
	}

	writeJSONResponse(w, http.StatusOK, impact)
}

// ValidateAssumptions handles POST /stats/assumptions
func (h *Handlers) ValidateAssumptions(w http.ResponseWriter, r *http.Request) {
	var req services.AssumptionsRequest
	if err := parseJSONRequest(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	check, err := h.statsService.ValidateAssumptions(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to validate assumptions")
		return
	}

	writeJSONResponse(w, http.StatusOK, check)
}

// Analyze handles POST /stats/analyze
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var req services.AnalysisRequest
	if err := parseJSONRequest(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Info().
		Str("principal", middleware.GetPrincipal(r.Context())).
		Int("variants", len(req.Variants)).
		Msg("Running ad-hoc analysis")

	report, err := h.statsService.Analyze(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to analyze experiment data")
		return
	}

	writeJSONResponse(w, http.StatusOK, report)
}
