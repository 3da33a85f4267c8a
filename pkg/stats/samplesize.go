package stats

import (
	"math"
)

// PlanSampleSize computes the per-variant and total sample size needed to
// detect an absolute lift of cfg.MinimumDetectableEffect over the baseline,
// plus the projected duration given the daily traffic.
func PlanSampleSize(cfg ExperimentConfig, assumptions BusinessAssumptions) (SampleSizePlan, error) {
	if err := cfg.Validate(); err != nil {
		return SampleSizePlan{}, err
	}
	if assumptions.DailyTraffic <= 0 {
		return SampleSizePlan{}, invalidParam("daily_traffic", assumptions.DailyTraffic, "must be positive")
	}
	if assumptions.TestDurationDays <= 0 {
		return SampleSizePlan{}, invalidParam("test_duration_days", assumptions.TestDurationDays, "must be positive")
	}

	p1 := cfg.BaselineConversionRate
	p2 := p1 + cfg.MinimumDetectableEffect

	perVariant, err := RequiredSampleSize(p1, p2, cfg.Alpha(), cfg.StatisticalPower)
	if err != nil {
		return SampleSizePlan{}, err
	}

	k := int64(cfg.NumberOfVariants)
	if perVariant > math.MaxInt64/k {
		return SampleSizePlan{}, tooLarge(cfg.MinimumDetectableEffect)
	}
	total := perVariant * k

	return SampleSizePlan{
		PerVariant:            perVariant,
		Total:                 total,
		PerDay:                ceilDiv(perVariant, int64(assumptions.TestDurationDays)),
		EstimatedDurationDays: int(ceilDiv(total, assumptions.DailyTraffic)),
	}, nil
}

// RequiredSampleSize returns the per-variant sample size of a two-sided
// two-proportion test distinguishing p1 from p2.
func RequiredSampleSize(p1, p2, alpha, power float64) (int64, error) {
	if !inClosedUnit(p1) {
		return 0, invalidParam("p1", p1, "must be in [0,1]")
	}
	if !inClosedUnit(p2) {
		return 0, invalidParam("p2", p2, "must be in [0,1]")
	}
	if p1 == p2 {
		return 0, invalidParam("minimum_detectable_effect", p2-p1, "MDE must be nonzero")
	}
	if err := validateAlpha(alpha); err != nil {
		return 0, err
	}
	if !inOpenUnit(power) {
		return 0, invalidParam("statistical_power", power, "must be in (0,1)")
	}

	zAlpha, err := criticalZ(alpha)
	if err != nil {
		return 0, err
	}
	zBeta, err := InverseNormalCDF(power)
	if err != nil {
		return 0, err
	}

	n := math.Ceil(sampleSize(p1, p2, zAlpha, zBeta))
	if n < 1 {
		n = 1
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if n >= float64(math.MaxInt64) {
		return 0, tooLarge(p2 - p1)
	}
	return int64(n), nil
}

// sampleSize is the unrounded per-variant size.
func sampleSize(p1, p2, zAlpha, zBeta float64) float64 {
	pooled := (p1 + p2) / 2
	variance := pooled * (1 - pooled)

	a := zAlpha * math.Sqrt(2*variance)
	b := zBeta * math.Sqrt(p1*(1-p1)+p2*(1-p2))
	d := p2 - p1

	return (a + b) * (a + b) / (d * d)
}

func tooLarge(mde float64) error {
	return invalidParam("minimum_detectable_effect", mde, "sample size exceeds representable range")
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}
