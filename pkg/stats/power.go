package stats

import (
	"math"
)

// defaultTargetPower is the power used for the planning hints in PowerReport.
const defaultTargetPower = 0.8

// AnalyzePower computes the power achieved with n observations per variant
// when the true rates are p1 and p2.
func AnalyzePower(p1, p2 float64, n int64, alpha float64) (PowerReport, error) {
	if !inClosedUnit(p1) {
		return PowerReport{}, invalidParam("p1", p1, "must be in [0,1]")
	}
	if !inClosedUnit(p2) {
		return PowerReport{}, invalidParam("p2", p2, "must be in [0,1]")
	}
	if n <= 0 {
		return PowerReport{}, invalidParam("sample_size", n, "must be positive")
	}
	if err := validateAlpha(alpha); err != nil {
		return PowerReport{}, err
	}

	zAlpha, err := criticalZ(alpha)
	if err != nil {
		return PowerReport{}, err
	}
	zBeta, err := InverseNormalCDF(defaultTargetPower)
	if err != nil {
		return PowerReport{}, err
	}

	size := float64(n)
	pooled := (p1 + p2) / 2
	sePooled := math.Sqrt(pooled * (1 - pooled) * 2 / size)
	seActual := math.Sqrt(p1*(1-p1)/size + p2*(1-p2)/size)
	criticalValue := zAlpha * sePooled
	delta := math.Abs(p2 - p1)

	var power float64
	switch {
	case seActual > 0:
		power = 1 - NormalCDF((criticalValue-delta)/seActual)
	case delta > criticalValue:
		// Degenerate rates: the difference is observed without noise.
		power = 1
	default:
		power = 0
	}
	power = clamp01(power)

	report := PowerReport{
		AchievedPower:       power,
		TypeIError:          alpha,
		TypeIIError:         1 - power,
		CriticalZ:           zAlpha,
		MinDetectableEffect: (zAlpha + zBeta) * math.Sqrt(2*p1*(1-p1)/size),
	}

	if p1 != p2 {
		required, err := RequiredSampleSize(p1, p2, alpha, defaultTargetPower)
		if err != nil {
			return PowerReport{}, err
		}
		report.RequiredSampleSize = required
	}

	return report, nil
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(math.Max(x, 0), 1)
}
