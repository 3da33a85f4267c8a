package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErf_KnownValues(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		0.5:  0.5204998778,
		1:    0.8427007929,
		2:    0.9953222650,
		-1:   -0.8427007929,
		3.5:  0.9999992569,
		-0.1: -0.1124629160,
	}

	for x, want := range cases {
		assert.InDelta(t, want, Erf(x), 2e-7, "erf(%v)", x)
		assert.InDelta(t, math.Erf(x), Erf(x), 2e-7, "erf(%v) vs math.Erf", x)
	}
}

func TestErf_OddSymmetry(t *testing.T) {
	for _, x := range []float64{0.001, 0.1, 0.7, 1.3, 2.5, 4, 10} {
		assert.Equal(t, -Erf(x), Erf(-x), "x=%v", x)
	}
}

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, NormalCDF(0), 1e-9)
	assert.InDelta(t, 0.975, NormalCDF(1.959964), 1e-6)
	assert.InDelta(t, 0.841345, NormalCDF(1), 1e-6)
	assert.InDelta(t, 0.158655, NormalCDF(-1), 1e-6)

	prev := 0.0
	for x := -6.0; x <= 6; x += 0.25 {
		v := NormalCDF(x)
		assert.True(t, v >= 0 && v <= 1, "cdf(%v)=%v out of range", x, v)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestInverseNormalCDF_RoundTrip(t *testing.T) {
	for _, p := range []float64{0.001, 0.01, 0.02, 0.1, 0.25, 0.5, 0.75, 0.9, 0.975, 0.98, 0.99, 0.999} {
		x, err := InverseNormalCDF(p)
		require.NoError(t, err)
		assert.InDelta(t, p, NormalCDF(x), 1e-4, "p=%v", p)
	}
}

func TestInverseNormalCDF_Quantiles(t *testing.T) {
	cases := map[float64]float64{
		0.5:   0,
		0.975: 1.959963985,
		0.8:   0.841621234,
		0.95:  1.644853627,
		0.01:  -2.326347874,
		0.995: 2.575829304,
	}

	for p, want := range cases {
		got, err := InverseNormalCDF(p)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-6, "p=%v", p)
	}
}

func TestInverseNormalCDF_Domain(t *testing.T) {
	for _, p := range []float64{0, 1, -0.5, 1.5, math.NaN()} {
		x, err := InverseNormalCDF(p)
		assert.ErrorIs(t, err, ErrDomain, "p=%v", p)
		assert.True(t, math.IsNaN(x))
	}
}
