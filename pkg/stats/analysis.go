package stats

import (
	"math"

	"golang.org/x/sync/errgroup"
)

// AnalysisInput is everything needed for a full experiment evaluation.
// Variants[0] is the control.
type AnalysisInput struct {
	Config      ExperimentConfig     `json:"config"`
	Assumptions BusinessAssumptions  `json:"assumptions"`
	Variants    []VariantObservation `json:"variants"`
	Pairwise    bool                 `json:"pairwise"`
	Strict      bool                 `json:"strict"`
	Correction  Correction           `json:"correction,omitempty"`
}

// VariantSummary is the per-arm view of the observed data.
type VariantSummary struct {
	Name           string   `json:"name"`
	Visitors       int64    `json:"visitors"`
	Conversions    int64    `json:"conversions"`
	Revenue        float64  `json:"revenue"`
	ConversionRate float64  `json:"conversion_rate"`
	RateInterval   Interval `json:"rate_interval"`
}

// Report aggregates every output of one analysis.
type Report struct {
	Variants       []VariantSummary     `json:"variants"`
	Plan           SampleSizePlan       `json:"plan"`
	Comparisons    []SignificanceResult `json:"comparisons"`
	Pairwise       []SignificanceResult `json:"pairwise,omitempty"`
	Power          *PowerReport         `json:"power,omitempty"`
	Impact         BusinessImpact       `json:"impact"`
	Recommendation Recommendation       `json:"recommendation"`
	Assumptions    AssumptionCheck      `json:"assumptions"`
}

// Analyze runs planning, significance and power analysis independently, then
// projects business impact and derives recommendations from all of them.
func Analyze(in AnalysisInput) (Report, error) {
	if err := in.Config.Validate(); err != nil {
		return Report{}, err
	}
	if err := in.Assumptions.Validate(); err != nil {
		return Report{}, err
	}
	if len(in.Variants) < 2 {
		return Report{}, invalidParam("variants", len(in.Variants), "need a control and at least one variant")
	}
	for _, v := range in.Variants {
		if err := v.Validate(); err != nil {
			return Report{}, err
		}
	}

	alpha := in.Config.Alpha()
	opts := ComparisonOptions{Alpha: alpha, Strict: in.Strict, Correction: in.Correction}

	var (
		report Report
		g      errgroup.Group
	)

	g.Go(func() error {
		plan, err := PlanSampleSize(in.Config, in.Assumptions)
		report.Plan = plan
		return err
	})
	g.Go(func() error {
		vsControl, pairwise, err := Compare(in.Variants, in.Pairwise, opts)
		report.Comparisons = vsControl
		report.Pairwise = pairwise
		return err
	})
	g.Go(func() error {
		power, err := observedPower(in)
		report.Power = power
		return err
	})

	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	impact, err := ProjectImpact(in.Variants, in.Assumptions)
	if err != nil {
		return Report{}, err
	}
	report.Impact = impact

	summaries, err := summarize(in.Variants, in.Config.ConfidenceLevel)
	if err != nil {
		return Report{}, err
	}
	report.Variants = summaries

	all := make([]SignificanceResult, 0, len(report.Comparisons)+len(report.Pairwise))
	all = append(all, report.Comparisons...)
	all = append(all, report.Pairwise...)

	report.Recommendation = Recommend(RecommendationInput{
		Control:     in.Variants[0].Name,
		Plan:        &report.Plan,
		Power:       report.Power,
		Comparisons: all,
		Impact:      &report.Impact,
	})
	report.Assumptions = ValidateAssumptions(AssumptionInput{
		Variants:     in.Variants,
		DailyTraffic: in.Assumptions.DailyTraffic,
		Alpha:        alpha,
	})

	return report, nil
}

// observedPower evaluates power at the observed control rate against a lift of
// one MDE, using the smallest arm as the per-variant sample size. It returns
// nil when an arm has no visitors yet.
func observedPower(in AnalysisInput) (*PowerReport, error) {
	n := in.Variants[0].Visitors
	for _, v := range in.Variants[1:] {
		if v.Visitors < n {
			n = v.Visitors
		}
	}
	if n == 0 {
		return nil, nil
	}

	p1 := in.Variants[0].ConversionRate()
	p2 := math.Min(p1+in.Config.MinimumDetectableEffect, 1)

	report, err := AnalyzePower(p1, p2, n, in.Config.Alpha())
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func summarize(variants []VariantObservation, confidence float64) ([]VariantSummary, error) {
	summaries := make([]VariantSummary, 0, len(variants))
	for _, v := range variants {
		interval, err := WilsonInterval(v.Conversions, v.Visitors, confidence)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, VariantSummary{
			Name:           v.Name,
			Visitors:       v.Visitors,
			Conversions:    v.Conversions,
			Revenue:        v.Revenue,
			ConversionRate: v.ConversionRate(),
			RateInterval:   interval,
		})
	}
	return summaries, nil
}
