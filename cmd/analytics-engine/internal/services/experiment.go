package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/cache"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/events"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/repository"
	"github.com/Sidd-007/experiment-analytics/pkg/config"
	"github.com/Sidd-007/experiment-analytics/pkg/stats"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var allowedTransitions = map[string][]string{
	repository.StatusDraft:   {repository.StatusRunning},
	repository.StatusRunning: {repository.StatusCompleted},
}

type ExperimentService interface {
	CreateExperiment(ctx context.Context, req *repository.CreateExperimentRequest) (*repository.Experiment, error)
	GetExperiment(ctx context.Context, id uuid.UUID) (*repository.Experiment, error)
	ListExperiments(ctx context.Context, limit, offset int) ([]*repository.Experiment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*repository.Experiment, error)
	AnalyzeExperiment(ctx context.Context, req *ExperimentAnalysisRequest) (*ExperimentAnalysis, error)
}

// Dependencies, satisfied by the repository, cache and events packages.
type (
	ExperimentStore interface {
		Create(ctx context.Context, req *repository.CreateExperimentRequest) (*repository.Experiment, error)
		GetByID(ctx context.Context, id uuid.UUID) (*repository.Experiment, error)
		List(ctx context.Context, limit, offset int) ([]*repository.Experiment, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*repository.Experiment, error)
	}

	ReportCache interface {
		Get(ctx context.Context, key string, dst interface{}) (bool, error)
		Set(ctx context.Context, key string, value interface{}) error
		GetStats() cache.CacheStats
		GetCacheHitRatio() float64
	}

	EventPublisher interface {
		PublishAnalysis(ctx context.Context, evt *events.AnalysisEvent) error
	}
)

type experimentService struct {
	store     ExperimentStore
	counters  repository.CounterRepository
	cache     ReportCache
	publisher EventPublisher
	defaults  config.AnalyticsConfig
	logger    zerolog.Logger

	group singleflight.Group
	now   func() time.Time
}

func NewExperimentService(
	store ExperimentStore,
	counters repository.CounterRepository,
	reportCache ReportCache,
	publisher EventPublisher,
	defaults config.AnalyticsConfig,
	logger zerolog.Logger,
) ExperimentService {
	return &experimentService{
		store:     store,
		counters:  counters,
		cache:     reportCache,
		publisher: publisher,
		defaults:  defaults,
		logger:    logger.With().Str("service", "experiment").Logger(),
		now:       time.Now,
	}
}

// ExperimentAnalysisRequest selects the data an experiment is analyzed over.
// A nil TimeRange means from the experiment start until now.
type ExperimentAnalysisRequest struct {
	ExperimentID uuid.UUID             `json:"experiment_id"`
	TimeRange    *repository.TimeRange `json:"time_range,omitempty"`
	Refresh      bool                  `json:"refresh"` // bypass the report cache
}

// ExperimentAnalysis is an analysis of a stored experiment over warehouse data.
type ExperimentAnalysis struct {
	AnalysisID   uuid.UUID            `json:"analysis_id"`
	ExperimentID uuid.UUID            `json:"experiment_id"`
	Name         string               `json:"name"`
	Status       string               `json:"status"`
	TimeRange    repository.TimeRange `json:"time_range"`
	GeneratedAt  time.Time            `json:"generated_at"`
	Cached       bool                 `json:"cached"`
	Report       stats.Report         `json:"report"`
}

func (s *experimentService) CreateExperiment(ctx context.Context, req *repository.CreateExperimentRequest) (*repository.Experiment, error) {
	filled := *req
	filled.ConfidenceLevel = orDefault(req.ConfidenceLevel, s.defaults.ConfidenceLevel)
	filled.StatisticalPower = orDefault(req.StatisticalPower, s.defaults.StatisticalPower)
	filled.MinimumDetectableEffect = orDefault(req.MinimumDetectableEffect, s.defaults.MinimumDetectableEffect)

	return s.store.Create(ctx, &filled)
}

func (s *experimentService) GetExperiment(ctx context.Context, id uuid.UUID) (*repository.Experiment, error) {
	return s.store.GetByID(ctx, id)
}

func (s *experimentService) ListExperiments(ctx context.Context, limit, offset int) ([]*repository.Experiment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

func (s *experimentService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*repository.Experiment, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(current.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	return s.store.UpdateStatus(ctx, id, status)
}

func canTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *experimentService) AnalyzeExperiment(ctx context.Context, req *ExperimentAnalysisRequest) (*ExperimentAnalysis, error) {
	exp, err := s.store.GetByID(ctx, req.ExperimentID)
	if err != nil {
		return nil, err
	}

	window, live := s.window(exp, req.TimeRange)
	if !window.End.After(window.Start) {
		return nil, fmt.Errorf("%w: time range end must be after start", repository.ErrInvalidInput)
	}

	key := s.cacheKey(exp, window, live)

	if !req.Refresh {
		var cached ExperimentAnalysis
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("experiment_id", exp.ID.String()).Msg("Report cache lookup failed")
		}
		if hit {
			cached.Cached = true
			return &cached, nil
		}
	}

	// Concurrent requests for the same analysis share one warehouse query.
	// The shared work must not die with the first caller's request.
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.analyze(context.WithoutCancel(ctx), exp, window, key)
	})
	if err != nil {
		return nil, err
	}

	analysis := v.(ExperimentAnalysis)
	if shared {
		s.logger.Debug().Str("experiment_id", exp.ID.String()).Msg("Joined in-flight analysis")
	}
	return &analysis, nil
}

func (s *experimentService) analyze(ctx context.Context, exp *repository.Experiment, window repository.TimeRange, key string) (ExperimentAnalysis, error) {
	if s.defaults.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.defaults.QueryTimeout)
		defer cancel()
	}

	start := s.now()

	observations, err := s.counters.GetVariantCounters(ctx, &repository.CounterQuery{
		ExperimentID:     exp.ID.String(),
		Variants:         exp.Variants,
		ConversionMetric: exp.ConversionMetric,
		RevenueMetric:    exp.RevenueMetric,
		TimeRange:        window,
	})
	if err != nil {
		return ExperimentAnalysis{}, fmt.Errorf("failed to load counters for experiment %s: %w", exp.ID, err)
	}

	report, err := stats.Analyze(stats.AnalysisInput{
		Config:      exp.Config(),
		Assumptions: exp.Assumptions(),
		Variants:    observations,
		Pairwise:    s.defaults.Pairwise,
		Strict:      s.defaults.StrictSignificance,
		Correction:  stats.Correction(s.defaults.Correction),
	})
	if err != nil {
		return ExperimentAnalysis{}, err
	}

	analysis := ExperimentAnalysis{
		AnalysisID:   uuid.New(),
		ExperimentID: exp.ID,
		Name:         exp.Name,
		Status:       exp.Status,
		TimeRange:    window,
		GeneratedAt:  s.now().UTC(),
		Report:       report,
	}

	cacheStats := s.cache.GetStats()
	s.logger.Info().
		Str("experiment_id", exp.ID.String()).
		Str("analysis_id", analysis.AnalysisID.String()).
		Str("verdict", string(report.Recommendation.Verdict)).
		Strs("winners", report.Recommendation.Winners).
		Dur("duration", s.now().Sub(start)).
		Int64("cache_hits", cacheStats.Hits).
		Int64("cache_misses", cacheStats.Misses).
		Float64("cache_hit_ratio", s.cache.GetCacheHitRatio()).
		Msg("Experiment analyzed")

	if err := s.cache.Set(ctx, key, analysis); err != nil {
		s.logger.Warn().Err(err).Str("experiment_id", exp.ID.String()).Msg("Failed to cache analysis")
	}

	evt := &events.AnalysisEvent{
		AnalysisID:   analysis.AnalysisID,
		ExperimentID: exp.ID,
		Verdict:      report.Recommendation.Verdict,
		Winners:      report.Recommendation.Winners,
		Comparisons:  report.Comparisons,
		GeneratedAt:  analysis.GeneratedAt,
	}
	if err := s.publisher.PublishAnalysis(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("experiment_id", exp.ID.String()).Msg("Failed to publish analysis event")
	}

	return analysis, nil
}

// window resolves the analysis window. live reports an open-ended window
// ending now, which is cached under a stable key until the TTL expires.
func (s *experimentService) window(exp *repository.Experiment, requested *repository.TimeRange) (repository.TimeRange, bool) {
	if requested != nil {
		return *requested, false
	}

	start := exp.CreatedAt
	if exp.StartedAt != nil {
		start = *exp.StartedAt
	}
	return repository.TimeRange{Start: start, End: s.now()}, true
}

func (s *experimentService) cacheKey(exp *repository.Experiment, window repository.TimeRange, live bool) string {
	end := "live"
	if !live {
		end = strconv.FormatInt(window.End.Unix(), 10)
	}
	return cache.Key(exp.ID.String(),
		strconv.FormatInt(window.Start.Unix(), 10),
		end,
		exp.Status,
		strconv.FormatBool(s.defaults.Pairwise),
		strconv.FormatBool(s.defaults.StrictSignificance),
		s.defaults.Correction,
	)
}
