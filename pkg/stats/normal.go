package stats

import (
	"fmt"
	"math"
)

// Abramowitz and Stegun, Handbook of Mathematical Functions, formula 7.1.26.
const (
	erfA1 = 0.254829592
	erfA2 = -0.284496736
	erfA3 = 1.421413741
	erfA4 = -1.453152027
	erfA5 = 1.061405429
	erfP  = 0.3275911
)

// Region boundaries for the inverse normal approximation.
const (
	inverseLow  = 0.02425
	inverseHigh = 1 - inverseLow
)

// Acklam's rational approximation coefficients.
var (
	acklamA = [6]float64{
		-3.969683028665376e+01,
		2.209460984245205e+02,
		-2.759285104469687e+02,
		1.383577518672690e+02,
		-3.066479806614716e+01,
		2.506628277459239e+00,
	}
	acklamB = [5]float64{
		-5.447609879822406e+01,
		1.615858368580409e+02,
		-1.556989798598866e+02,
		6.680131188771972e+01,
		-1.328068155288572e+01,
	}
	acklamC = [6]float64{
		-7.784894002430293e-03,
		-3.223964580411365e-01,
		-2.400758277161838e+00,
		-2.549732539343734e+00,
		4.374664141464968e+00,
		2.938163982698783e+00,
	}
	acklamD = [4]float64{
		7.784695709041462e-03,
		3.224671290700398e-01,
		2.445134137142996e+00,
		3.754408661907416e+00,
	}
)

// Erf approximates the error function with a maximum absolute error of about 1.5e-7.
func Erf(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x)

	t := 1.0 / (1.0 + erfP*x)
	y := 1.0 - (((((erfA5*t+erfA4)*t)+erfA3)*t+erfA2)*t+erfA1)*t*math.Exp(-x*x)

	return sign * y
}

// NormalCDF returns P(Z <= x) for a standard normal Z.
func NormalCDF(x float64) float64 {
	return 0.5 * (1 + Erf(x/math.Sqrt2))
}

// InverseNormalCDF returns the quantile of the standard normal distribution.
// p must lie strictly inside (0, 1).
func InverseNormalCDF(p float64) (float64, error) {
	if math.IsNaN(p) || p <= 0 || p >= 1 {
		return math.NaN(), fmt.Errorf("inverse normal CDF of %v: %w", p, ErrDomain)
	}

	switch {
	case p < inverseLow:
		q := math.Sqrt(-2 * math.Log(p))
		return tailQuantile(q), nil
	case p > inverseHigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -tailQuantile(q), nil
	default:
		q := p - 0.5
		r := q * q
		num := (((((acklamA[0]*r+acklamA[1])*r+acklamA[2])*r+acklamA[3])*r+acklamA[4])*r + acklamA[5]) * q
		den := ((((acklamB[0]*r+acklamB[1])*r+acklamB[2])*r+acklamB[3])*r+acklamB[4])*r + 1
		return num / den, nil
	}
}

func tailQuantile(q float64) float64 {
	num := ((((acklamC[0]*q+acklamC[1])*q+acklamC[2])*q+acklamC[3])*q+acklamC[4])*q + acklamC[5]
	den := (((acklamD[0]*q+acklamD[1])*q+acklamD[2])*q+acklamD[3])*q + 1
	return num / den
}

// criticalZ is the two-tailed critical value for alpha.
func criticalZ(alpha float64) (float64, error) {
	return InverseNormalCDF(1 - alpha/2)
}
