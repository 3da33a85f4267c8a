package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNormalDistributionProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("erf is odd", prop.ForAll(
		func(x float64) bool {
			return Erf(-x) == -Erf(x)
		},
		gen.Float64Range(-10, 10),
	))

	properties.Property("normal CDF stays in [0,1]", prop.ForAll(
		func(x float64) bool {
			v := NormalCDF(x)
			return v >= 0 && v <= 1
		},
		gen.Float64Range(-40, 40),
	))

	properties.Property("inverse CDF round trips", prop.ForAll(
		func(p float64) bool {
			x, err := InverseNormalCDF(p)
			if err != nil {
				return false
			}
			return math.Abs(NormalCDF(x)-p) < 1e-4
		},
		gen.Float64Range(0.0005, 0.9995),
	))

	properties.TestingRun(t)
}

func TestSampleSizeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("larger MDE needs fewer samples", prop.ForAll(
		func(baseline, mde, step float64) bool {
			if baseline+mde+step >= 1 {
				return true
			}
			zAlpha, _ := criticalZ(0.05)
			zBeta, _ := InverseNormalCDF(0.8)

			small := sampleSize(baseline, baseline+mde, zAlpha, zBeta)
			large := sampleSize(baseline, baseline+mde+step, zAlpha, zBeta)
			if !(large < small) {
				return false
			}

			n1, err1 := RequiredSampleSize(baseline, baseline+mde, 0.05, 0.8)
			n2, err2 := RequiredSampleSize(baseline, baseline+mde+step, 0.05, 0.8)
			return err1 == nil && err2 == nil && n2 <= n1
		},
		gen.Float64Range(0.001, 0.6),
		gen.Float64Range(0.001, 0.2),
		gen.Float64Range(0.0001, 0.1),
	))

	properties.TestingRun(t)
}

func TestSignificanceProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("significance agrees with p-value", prop.ForAll(
		func(n1, c1, n2, c2 int64, alpha float64) bool {
			c1 = c1 % (n1 + 1)
			c2 = c2 % (n2 + 1)
			res, err := TestSignificanceOrNeutral(
				VariantObservation{Name: "a", Visitors: n1, Conversions: c1},
				VariantObservation{Name: "b", Visitors: n2, Conversions: c2},
				alpha,
			)
			if err != nil {
				return false
			}
			return res.IsSignificant == (res.PValue < res.Alpha) &&
				res.PValue >= 0 && res.PValue <= 1 &&
				res.ConfidenceInterval.Lower <= res.ConfidenceInterval.Upper
		},
		gen.Int64Range(1, 100000),
		gen.Int64Range(0, 100000),
		gen.Int64Range(1, 100000),
		gen.Int64Range(0, 100000),
		gen.Float64Range(0.01, 0.2),
	))

	properties.Property("swapping arms mirrors the z-score", prop.ForAll(
		func(n1, c1, n2, c2 int64) bool {
			a := VariantObservation{Name: "a", Visitors: n1, Conversions: c1 % (n1 + 1)}
			b := VariantObservation{Name: "b", Visitors: n2, Conversions: c2 % (n2 + 1)}
			ab, err1 := TestSignificanceOrNeutral(a, b, 0.05)
			ba, err2 := TestSignificanceOrNeutral(b, a, 0.05)
			if err1 != nil || err2 != nil {
				return false
			}
			return ab.ZScore == -ba.ZScore && ab.PValue == ba.PValue
		},
		gen.Int64Range(1, 50000),
		gen.Int64Range(0, 50000),
		gen.Int64Range(1, 50000),
		gen.Int64Range(0, 50000),
	))

	properties.TestingRun(t)
}

// Identical arms should be declared different in roughly alpha of the runs.
func TestSignificance_IdenticalArmsRarelySignificant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const (
		runs     = 400
		visitors = 2000
		rate     = 0.1
	)

	draw := func() int64 {
		var conv int64
		for i := 0; i < visitors; i++ {
			if rng.Float64() < rate {
				conv++
			}
		}
		return conv
	}

	significant := 0
	pSum := 0.0
	for i := 0; i < runs; i++ {
		res, err := TestSignificance(
			VariantObservation{Name: "a", Visitors: visitors, Conversions: draw()},
			VariantObservation{Name: "b", Visitors: visitors, Conversions: draw()},
			0.05,
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.IsSignificant {
			significant++
		}
		pSum += res.PValue
	}

	if frac := float64(significant) / runs; frac > 0.12 {
		t.Errorf("identical arms significant in %.1f%% of runs", frac*100)
	}
	if mean := pSum / runs; mean < 0.35 {
		t.Errorf("mean p-value %.3f too small for identical arms", mean)
	}

	exact, err := TestSignificance(
		VariantObservation{Name: "a", Visitors: visitors, Conversions: 200},
		VariantObservation{Name: "b", Visitors: visitors, Conversions: 200},
		0.05,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exact.PValue < 0.999 || exact.IsSignificant {
		t.Errorf("equal observed rates: p=%v significant=%v", exact.PValue, exact.IsSignificant)
	}
}
