package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Sidd-007/experiment-analytics/pkg/config"
	"github.com/Sidd-007/experiment-analytics/pkg/stats"
)

// StatisticsService runs the engine on ad-hoc inputs, filling unset options
// from the configured analysis defaults.
type StatisticsService interface {
	PlanSampleSize(ctx context.Context, req *SampleSizeRequest) (*stats.SampleSizePlan, error)
	TestSignificance(ctx context.Context, req *SignificanceRequest) (*SignificanceResponse, error)
	AnalyzePower(ctx context.Context, req *PowerRequest) (*stats.PowerReport, error)
	ProjectImpact(ctx context.Context, req *ImpactRequest) (*stats.BusinessImpact, error)
	ValidateAssumptions(ctx context.Context, req *AssumptionsRequest) (*stats.AssumptionCheck, error)
	Analyze(ctx context.Context, req *AnalysisRequest) (*stats.Report, error)
}

type statisticsService struct {
	defaults config.AnalyticsConfig
	logger   zerolog.Logger
}

func NewStatisticsService(defaults config.AnalyticsConfig, logger zerolog.Logger) StatisticsService {
	return &statisticsService{
		defaults: defaults,
		logger:   logger.With().Str("service", "statistics").Logger(),
	}
}

// Request types
type SampleSizeRequest struct {
	BaselineConversionRate  float64 `json:"baseline_conversion_rate"`
	MinimumDetectableEffect float64 `json:"minimum_detectable_effect"` // absolute
	ConfidenceLevel         float64 `json:"confidence_level"`          // default from config
	StatisticalPower        float64 `json:"statistical_power"`         // default from config
	NumberOfVariants        int     `json:"number_of_variants"`        // default 2
	DailyTraffic            int64   `json:"daily_traffic"`
	TestDurationDays        int     `json:"test_duration_days"`
}

// SignificanceRequest compares Variants[1:] against Variants[0]. With
// Pairwise the non-control pairs join the same correction family.
type SignificanceRequest struct {
	Variants   []stats.VariantObservation `json:"variants"`
	Alpha      float64                    `json:"alpha"` // default 1 - confidence level
	Pairwise   *bool                      `json:"pairwise,omitempty"`
	Strict     *bool                      `json:"strict,omitempty"`
	Correction stats.Correction           `json:"correction,omitempty"`
}

type PowerRequest struct {
	BaselineRate float64 `json:"baseline_rate"`
	ExpectedRate float64 `json:"expected_rate"`
	SampleSize   int64   `json:"sample_size"` // per variant
	Alpha        float64 `json:"alpha"`
}

type ImpactRequest struct {
	Variants    []stats.VariantObservation `json:"variants"`
	Assumptions stats.BusinessAssumptions  `json:"assumptions"`
}

type AssumptionsRequest struct {
	Variants     []stats.VariantObservation `json:"variants"`
	DailyTraffic int64                      `json:"daily_traffic"`
	Alpha        float64                    `json:"alpha"`
}

type AnalysisRequest struct {
	Config      stats.ExperimentConfig     `json:"config"`
	Assumptions stats.BusinessAssumptions  `json:"assumptions"`
	Variants    []stats.VariantObservation `json:"variants"`
	Pairwise    *bool                      `json:"pairwise,omitempty"`
	Strict      *bool                      `json:"strict,omitempty"`
	Correction  stats.Correction           `json:"correction,omitempty"`
}

// Response types
type SignificanceResponse struct {
	Comparisons []stats.SignificanceResult `json:"comparisons"`
	Pairwise    []stats.SignificanceResult `json:"pairwise,omitempty"`
}

func (s *statisticsService) PlanSampleSize(ctx context.Context, req *SampleSizeRequest) (*stats.SampleSizePlan, error) {
	cfg := stats.ExperimentConfig{
		BaselineConversionRate:  req.BaselineConversionRate,
		MinimumDetectableEffect: req.MinimumDetectableEffect,
		ConfidenceLevel:         orDefault(req.ConfidenceLevel, s.defaults.ConfidenceLevel),
		StatisticalPower:        orDefault(req.StatisticalPower, s.defaults.StatisticalPower),
		NumberOfVariants:        req.NumberOfVariants,
	}
	if cfg.NumberOfVariants == 0 {
		cfg.NumberOfVariants = 2
	}

	plan, err := stats.PlanSampleSize(cfg, stats.BusinessAssumptions{
		DailyTraffic:     req.DailyTraffic,
		TestDurationDays: req.TestDurationDays,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Float64("baseline", cfg.BaselineConversionRate).
		Float64("mde", cfg.MinimumDetectableEffect).
		Int64("per_variant", plan.PerVariant).
		Int("duration_days", plan.EstimatedDurationDays).
		Msg("Sample size planned")

	return &plan, nil
}

func (s *statisticsService) TestSignificance(ctx context.Context, req *SignificanceRequest) (*SignificanceResponse, error) {
	if len(req.Variants) < 2 {
		return nil, invalidVariantCount(len(req.Variants))
	}

	opts := stats.ComparisonOptions{
		Alpha:      orDefault(req.Alpha, s.alpha()),
		Strict:     boolOrDefault(req.Strict, s.defaults.StrictSignificance),
		Correction: s.correction(req.Correction),
	}

	pairwise := boolOrDefault(req.Pairwise, s.defaults.Pairwise)
	comparisons, pairs, err := stats.Compare(req.Variants, pairwise, opts)
	if err != nil {
		return nil, err
	}

	resp := &SignificanceResponse{Comparisons: comparisons, Pairwise: pairs}

	for _, c := range comparisons {
		s.logger.Debug().
			Str("control", c.ControlVariant).
			Str("variant", c.ComparisonVariant).
			Float64("z_score", c.ZScore).
			Float64("p_value", c.PValue).
			Bool("significant", c.IsSignificant).
			Msg("Two-proportion z-test completed")
	}

	return resp, nil
}

func (s *statisticsService) AnalyzePower(ctx context.Context, req *PowerRequest) (*stats.PowerReport, error) {
	report, err := stats.AnalyzePower(req.BaselineRate, req.ExpectedRate, req.SampleSize, orDefault(req.Alpha, s.alpha()))
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int64("sample_size", req.SampleSize).
		Float64("power", report.AchievedPower).
		Msg("Power analysis completed")

	return &report, nil
}

func (s *statisticsService) ProjectImpact(ctx context.Context, req *ImpactRequest) (*stats.BusinessImpact, error) {
	impact, err := stats.ProjectImpact(req.Variants, req.Assumptions)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("best_variant", impact.BestVariant).
		Float64("daily_lift", impact.DailyRevenueLift).
		Float64("roi", impact.ROIRealistic).
		Msg("Business impact projected")

	return &impact, nil
}

func (s *statisticsService) ValidateAssumptions(ctx context.Context, req *AssumptionsRequest) (*stats.AssumptionCheck, error) {
	if len(req.Variants) == 0 {
		return nil, invalidVariantCount(0)
	}
	check := stats.ValidateAssumptions(stats.AssumptionInput{
		Variants:     req.Variants,
		DailyTraffic: req.DailyTraffic,
		Alpha:        orDefault(req.Alpha, s.alpha()),
	})
	return &check, nil
}

func (s *statisticsService) Analyze(ctx context.Context, req *AnalysisRequest) (*stats.Report, error) {
	cfg := req.Config
	cfg.ConfidenceLevel = orDefault(cfg.ConfidenceLevel, s.defaults.ConfidenceLevel)
	cfg.StatisticalPower = orDefault(cfg.StatisticalPower, s.defaults.StatisticalPower)
	if cfg.NumberOfVariants == 0 {
		cfg.NumberOfVariants = len(req.Variants)
	}

	report, err := stats.Analyze(stats.AnalysisInput{
		Config:      cfg,
		Assumptions: req.Assumptions,
		Variants:    req.Variants,
		Pairwise:    boolOrDefault(req.Pairwise, s.defaults.Pairwise),
		Strict:      boolOrDefault(req.Strict, s.defaults.StrictSignificance),
		Correction:  s.correction(req.Correction),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("variants", len(req.Variants)).
		Str("verdict", string(report.Recommendation.Verdict)).
		Int("warnings", len(report.Recommendation.Warnings)).
		Msg("Analysis completed")

	return &report, nil
}

func (s *statisticsService) alpha() float64 {
	return 1 - s.defaults.ConfidenceLevel
}

func (s *statisticsService) correction(c stats.Correction) stats.Correction {
	if c == "" {
		return stats.Correction(s.defaults.Correction)
	}
	return c
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func invalidVariantCount(n int) error {
	return &stats.ParamError{Field: "variants", Value: n, Reason: "need a control and at least one variant"}
}
