package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Sidd-007/experiment-analytics/pkg/stats"
)

// Experiment statuses
const (
	StatusDraft     = "draft"
	StatusRunning   = "running"
	StatusCompleted = "completed"
)

const uniqueViolation = "23505"

// Experiment is a stored experiment plan. Variants[0] is the control.
type Experiment struct {
	ID                      uuid.UUID  `json:"id"`
	Name                    string     `json:"name"`
	Description             string     `json:"description,omitempty"`
	Variants                []string   `json:"variants"`
	ConversionMetric        string     `json:"conversion_metric"`
	RevenueMetric           string     `json:"revenue_metric,omitempty"`
	BaselineConversionRate  float64    `json:"baseline_conversion_rate"`
	MinimumDetectableEffect float64    `json:"minimum_detectable_effect"`
	ConfidenceLevel         float64    `json:"confidence_level"`
	StatisticalPower        float64    `json:"statistical_power"`
	DailyTraffic            int64      `json:"daily_traffic"`
	CostPerVisitor          float64    `json:"cost_per_visitor"`
	AverageOrderValue       float64    `json:"average_order_value"`
	TestDurationDays        int        `json:"test_duration_days"`
	Status                  string     `json:"status"`
	StartedAt               *time.Time `json:"started_at,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// Config returns the planning parameters of the experiment.
func (e *Experiment) Config() stats.ExperimentConfig {
	return stats.ExperimentConfig{
		BaselineConversionRate:  e.BaselineConversionRate,
		MinimumDetectableEffect: e.MinimumDetectableEffect,
		ConfidenceLevel:         e.ConfidenceLevel,
		StatisticalPower:        e.StatisticalPower,
		NumberOfVariants:        len(e.Variants),
	}
}

// Assumptions returns the business assumptions of the experiment.
func (e *Experiment) Assumptions() stats.BusinessAssumptions {
	return stats.BusinessAssumptions{
		DailyTraffic:      e.DailyTraffic,
		CostPerVisitor:    e.CostPerVisitor,
		AverageOrderValue: e.AverageOrderValue,
		TestDurationDays:  e.TestDurationDays,
		SkipROI:           e.CostPerVisitor == 0,
	}
}

// CreateExperimentRequest input for creating an experiment
type CreateExperimentRequest struct {
	Name                    string   `json:"name"`
	Description             string   `json:"description"`
	Variants                []string `json:"variants"`
	ConversionMetric        string   `json:"conversion_metric"`
	RevenueMetric           string   `json:"revenue_metric"`
	BaselineConversionRate  float64  `json:"baseline_conversion_rate"`
	MinimumDetectableEffect float64  `json:"minimum_detectable_effect"`
	ConfidenceLevel         float64  `json:"confidence_level"`
	StatisticalPower        float64  `json:"statistical_power"`
	DailyTraffic            int64    `json:"daily_traffic"`
	CostPerVisitor          float64  `json:"cost_per_visitor"`
	AverageOrderValue       float64  `json:"average_order_value"`
	TestDurationDays        int      `json:"test_duration_days"`
}

// Validate checks the request describes an analyzable experiment.
func (req *CreateExperimentRequest) Validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if req.ConversionMetric == "" {
		return fmt.Errorf("%w: conversion_metric is required", ErrInvalidInput)
	}

	seen := make(map[string]bool, len(req.Variants))
	for _, v := range req.Variants {
		if v == "" {
			return fmt.Errorf("%w: variant names must not be empty", ErrInvalidInput)
		}
		if seen[v] {
			return fmt.Errorf("%w: duplicate variant %q", ErrInvalidInput, v)
		}
		seen[v] = true
	}

	plan := Experiment{
		Variants:                req.Variants,
		BaselineConversionRate:  req.BaselineConversionRate,
		MinimumDetectableEffect: req.MinimumDetectableEffect,
		ConfidenceLevel:         req.ConfidenceLevel,
		StatisticalPower:        req.StatisticalPower,
		DailyTraffic:            req.DailyTraffic,
		CostPerVisitor:          req.CostPerVisitor,
		AverageOrderValue:       req.AverageOrderValue,
		TestDurationDays:        req.TestDurationDays,
	}
	if err := plan.Config().Validate(); err != nil {
		return err
	}
	return plan.Assumptions().Validate()
}

// ExperimentRepository handles experiment plan persistence
type ExperimentRepository struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

// NewExperimentRepository creates a new experiment repository
func NewExperimentRepository(db *pgxpool.Pool, logger zerolog.Logger) *ExperimentRepository {
	return &ExperimentRepository{
		db:     db,
		logger: logger.With().Str("repository", "experiment").Logger(),
	}
}

const experimentColumns = `id, name, description, variants, conversion_metric, revenue_metric,
	baseline_conversion_rate, minimum_detectable_effect, confidence_level, statistical_power,
	daily_traffic, cost_per_visitor, average_order_value, test_duration_days,
	status, started_at, created_at, updated_at`

// Create inserts a new experiment in draft status
func (r *ExperimentRepository) Create(ctx context.Context, req *CreateExperimentRequest) (*Experiment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e := &Experiment{
		ID:                      uuid.New(),
		Name:                    req.Name,
		Description:             req.Description,
		Variants:                req.Variants,
		ConversionMetric:        req.ConversionMetric,
		RevenueMetric:           req.RevenueMetric,
		BaselineConversionRate:  req.BaselineConversionRate,
		MinimumDetectableEffect: req.MinimumDetectableEffect,
		ConfidenceLevel:         req.ConfidenceLevel,
		StatisticalPower:        req.StatisticalPower,
		DailyTraffic:            req.DailyTraffic,
		CostPerVisitor:          req.CostPerVisitor,
		AverageOrderValue:       req.AverageOrderValue,
		TestDurationDays:        req.TestDurationDays,
		Status:                  StatusDraft,
	}

	query := `INSERT INTO experiments (id, name, description, variants, conversion_metric, revenue_metric,
		baseline_conversion_rate, minimum_detectable_effect, confidence_level, statistical_power,
		daily_traffic, cost_per_visitor, average_order_value, test_duration_days, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		e.ID, e.Name, e.Description, e.Variants, e.ConversionMetric, e.RevenueMetric,
		e.BaselineConversionRate, e.MinimumDetectableEffect, e.ConfidenceLevel, e.StatisticalPower,
		e.DailyTraffic, e.CostPerVisitor, e.AverageOrderValue, e.TestDurationDays, e.Status,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: experiment %q", ErrConflict, e.Name)
		}
		r.logger.Error().Err(err).Str("name", e.Name).Msg("Failed to create experiment")
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	r.logger.Info().
		Str("experiment_id", e.ID.String()).
		Str("name", e.Name).
		Int("variants", len(e.Variants)).
		Msg("Experiment created")

	return e, nil
}

// GetByID returns an experiment by ID
func (r *ExperimentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Experiment, error) {
	q := `SELECT ` + experimentColumns + ` FROM experiments WHERE id=$1`
	e, err := scanExperiment(r.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
		}
		r.logger.Error().Err(err).Str("experiment_id", id.String()).Msg("Failed to get experiment by ID")
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return e, nil
}

// List returns experiments, newest first
func (r *ExperimentRepository) List(ctx context.Context, limit, offset int) ([]*Experiment, error) {
	q := `SELECT ` + experimentColumns + ` FROM experiments ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, q, limit, offset)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list experiments")
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	experiments := []*Experiment{}
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating experiments: %w", err)
	}

	return experiments, nil
}

// UpdateStatus moves an experiment to status. Entering running stamps started_at.
func (r *ExperimentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Experiment, error) {
	q := `UPDATE experiments
		SET status = $2,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + experimentColumns
	e, err := scanExperiment(r.db.QueryRow(ctx, q, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
		}
		r.logger.Error().Err(err).Str("experiment_id", id.String()).Msg("Failed to update experiment status")
		return nil, fmt.Errorf("failed to update experiment status: %w", err)
	}

	r.logger.Info().
		Str("experiment_id", id.String()).
		Str("status", status).
		Msg("Experiment status updated")

	return e, nil
}

func scanExperiment(row pgx.Row) (*Experiment, error) {
	e := &Experiment{}
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.Variants, &e.ConversionMetric, &e.RevenueMetric,
		&e.BaselineConversionRate, &e.MinimumDetectableEffect, &e.ConfidenceLevel, &e.StatisticalPower,
		&e.DailyTraffic, &e.CostPerVisitor, &e.AverageOrderValue, &e.TestDurationDays,
		&e.Status, &e.StartedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}
