package stats

import (
	"math"
)

// VariantObservation holds the raw counters collected for one experiment arm.
type VariantObservation struct {
	Name        string  `json:"name"`
	Visitors    int64   `json:"visitors"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// ConversionRate returns conversions/visitors, or 0 when there are no visitors.
func (v VariantObservation) ConversionRate() float64 {
	if v.Visitors == 0 {
		return 0
	}
	return float64(v.Conversions) / float64(v.Visitors)
}

// Validate checks the counters are consistent.
func (v VariantObservation) Validate() error {
	if v.Visitors < 0 {
		return invalidParam(v.field("visitors"), v.Visitors, "must be non-negative")
	}
	if v.Conversions < 0 {
		return invalidParam(v.field("conversions"), v.Conversions, "must be non-negative")
	}
	if v.Conversions > v.Visitors {
		return invalidParam(v.field("conversions"), v.Conversions, "must not exceed visitors")
	}
	if v.Revenue < 0 || math.IsNaN(v.Revenue) {
		return invalidParam(v.field("revenue"), v.Revenue, "must be non-negative")
	}
	return nil
}

func (v VariantObservation) field(name string) string {
	if v.Name == "" {
		return name
	}
	return v.Name + "." + name
}

// ExperimentConfig holds the planning parameters of an experiment.
type ExperimentConfig struct {
	BaselineConversionRate  float64 `json:"baseline_conversion_rate"`
	MinimumDetectableEffect float64 `json:"minimum_detectable_effect"` // absolute rate delta
	ConfidenceLevel         float64 `json:"confidence_level"`
	StatisticalPower        float64 `json:"statistical_power"`
	NumberOfVariants        int     `json:"number_of_variants"`
}

// NewExperimentConfig builds a validated ExperimentConfig.
func NewExperimentConfig(baseline, mde, confidence, power float64, variants int) (ExperimentConfig, error) {
	cfg := ExperimentConfig{
		BaselineConversionRate:  baseline,
		MinimumDetectableEffect: mde,
		ConfidenceLevel:         confidence,
		StatisticalPower:        power,
		NumberOfVariants:        variants,
	}
	if err := cfg.Validate(); err != nil {
		return ExperimentConfig{}, err
	}
	return cfg, nil
}

// Alpha is the significance threshold derived from the confidence level.
func (c ExperimentConfig) Alpha() float64 {
	return 1 - c.ConfidenceLevel
}

// Validate rejects values outside their declared domains.
func (c ExperimentConfig) Validate() error {
	if !inClosedUnit(c.BaselineConversionRate) {
		return invalidParam("baseline_conversion_rate", c.BaselineConversionRate, "must be in [0,1]")
	}
	if c.MinimumDetectableEffect == 0 {
		return invalidParam("minimum_detectable_effect", c.MinimumDetectableEffect, "MDE must be nonzero")
	}
	if !(c.MinimumDetectableEffect > 0 && c.MinimumDetectableEffect <= 1) {
		return invalidParam("minimum_detectable_effect", c.MinimumDetectableEffect, "must be in (0,1]")
	}
	if !inOpenUnit(c.ConfidenceLevel) {
		return invalidParam("confidence_level", c.ConfidenceLevel, "must be in (0,1)")
	}
	if !inOpenUnit(c.StatisticalPower) {
		return invalidParam("statistical_power", c.StatisticalPower, "must be in (0,1)")
	}
	if c.NumberOfVariants < 2 {
		return invalidParam("number_of_variants", c.NumberOfVariants, "must be at least 2")
	}
	return nil
}

// BusinessAssumptions feed the revenue and duration projections.
type BusinessAssumptions struct {
	DailyTraffic      int64   `json:"daily_traffic"`
	CostPerVisitor    float64 `json:"cost_per_visitor"`
	AverageOrderValue float64 `json:"average_order_value"`
	TestDurationDays  int     `json:"test_duration_days"`
	SkipROI           bool    `json:"skip_roi"`
}

// Validate rejects values outside their declared domains.
func (b BusinessAssumptions) Validate() error {
	if b.DailyTraffic <= 0 {
		return invalidParam("daily_traffic", b.DailyTraffic, "must be positive")
	}
	if b.CostPerVisitor < 0 || math.IsNaN(b.CostPerVisitor) {
		return invalidParam("cost_per_visitor", b.CostPerVisitor, "must be non-negative")
	}
	if b.AverageOrderValue < 0 || math.IsNaN(b.AverageOrderValue) {
		return invalidParam("average_order_value", b.AverageOrderValue, "must be non-negative")
	}
	if b.TestDurationDays <= 0 {
		return invalidParam("test_duration_days", b.TestDurationDays, "must be positive")
	}
	return nil
}

// Interval is a closed [Lower, Upper] range.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains reports whether x lies inside the interval.
func (i Interval) Contains(x float64) bool {
	return x >= i.Lower && x <= i.Upper
}

// VariantPair identifies one pairwise comparison.
type VariantPair struct {
	Control    string `json:"control"`
	Comparison string `json:"comparison"`
}

// SignificanceResult is the outcome of one two-proportion z-test.
type SignificanceResult struct {
	ComparisonVariant  string   `json:"comparison_variant"`
	ControlVariant     string   `json:"control_variant"`
	ZScore             float64  `json:"z_score"`
	PValue             float64  `json:"p_value"`
	ConfidenceInterval Interval `json:"confidence_interval"`
	IsSignificant      bool     `json:"is_significant"`
	EffectSizeRelative float64  `json:"effect_size_relative"`
	Alpha              float64  `json:"alpha"`
	Neutral            bool     `json:"neutral,omitempty"` // produced without data
}

// Pair returns the key of this comparison.
func (r SignificanceResult) Pair() VariantPair {
	return VariantPair{Control: r.ControlVariant, Comparison: r.ComparisonVariant}
}

// SampleSizePlan is the output of the sample size planner.
type SampleSizePlan struct {
	PerVariant            int64 `json:"per_variant"`
	Total                 int64 `json:"total"`
	PerDay                int64 `json:"per_day"`
	EstimatedDurationDays int   `json:"estimated_duration_days"`
}

// PowerReport is the output of the power analyzer.
type PowerReport struct {
	AchievedPower       float64 `json:"achieved_power"`
	TypeIError          float64 `json:"type_i_error"`
	TypeIIError         float64 `json:"type_ii_error"`
	CriticalZ           float64 `json:"critical_z"`
	RequiredSampleSize  int64   `json:"required_sample_size"`
	MinDetectableEffect float64 `json:"min_detectable_effect"`
}

// BusinessImpact is the output of the impact projector.
type BusinessImpact struct {
	BestVariant        string  `json:"best_variant"`
	DailyRevenueLift   float64 `json:"daily_revenue_lift"`
	MonthlyRevenueLift float64 `json:"monthly_revenue_lift"`
	YearlyRevenueLift  float64 `json:"yearly_revenue_lift"`
	TestCost           float64 `json:"test_cost"`
	OpportunityCost    float64 `json:"opportunity_cost"`
	BreakEvenDays      float64 `json:"break_even_days"`
	ROIOptimistic      float64 `json:"roi_optimistic"`
	ROIRealistic       float64 `json:"roi_realistic"`
	ROIPessimistic     float64 `json:"roi_pessimistic"`
}

func inOpenUnit(x float64) bool {
	return x > 0 && x < 1
}

func inClosedUnit(x float64) bool {
	return x >= 0 && x <= 1
}

func validateAlpha(alpha float64) error {
	if !inOpenUnit(alpha) {
		return invalidParam("alpha", alpha, "must be in (0,1)")
	}
	return nil
}
