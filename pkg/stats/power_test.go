package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzePower_AtPlannedSampleSize(t *testing.T) {
	n, err := RequiredSampleSize(0.05, 0.06, 0.05, 0.8)
	require.NoError(t, err)

	report, err := AnalyzePower(0.05, 0.06, n, 0.05)
	require.NoError(t, err)

	assert.InDelta(t, 0.80, report.AchievedPower, 0.005)
	assert.Equal(t, 0.05, report.TypeIError)
	assert.InDelta(t, 1-report.AchievedPower, report.TypeIIError, 1e-12)
	assert.InDelta(t, 1.959964, report.CriticalZ, 1e-5)
	assert.Equal(t, n, report.RequiredSampleSize)
	assert.InDelta(t, 2.801585*math.Sqrt(2*0.05*0.95/float64(n)), report.MinDetectableEffect, 1e-5)
}

func TestAnalyzePower_Underpowered(t *testing.T) {
	report, err := AnalyzePower(0.05, 0.06, 1000, 0.05)
	require.NoError(t, err)

	assert.InDelta(t, 0.1637, report.AchievedPower, 0.001)
	assert.InDelta(t, 0.8363, report.TypeIIError, 0.001)
}

func TestAnalyzePower_IncreasesWithSampleSize(t *testing.T) {
	prev := 0.0
	for _, n := range []int64{100, 500, 1000, 5000, 10000, 50000, 200000} {
		report, err := AnalyzePower(0.10, 0.11, n, 0.05)
		require.NoError(t, err)
		assert.Greater(t, report.AchievedPower, prev, "n=%d", n)
		assert.True(t, report.AchievedPower >= 0 && report.AchievedPower <= 1)
		prev = report.AchievedPower
	}
	assert.Greater(t, prev, 0.99)
}

func TestAnalyzePower_NoEffect(t *testing.T) {
	report, err := AnalyzePower(0.2, 0.2, 1000, 0.05)
	require.NoError(t, err)

	assert.InDelta(t, 0.025, report.AchievedPower, 1e-3)
	assert.Zero(t, report.RequiredSampleSize)
}

func TestAnalyzePower_DegenerateRates(t *testing.T) {
	report, err := AnalyzePower(0, 1, 10, 0.05)
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.AchievedPower)

	report, err = AnalyzePower(0, 0, 10, 0.05)
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.AchievedPower)
	assert.Equal(t, 1.0, report.TypeIIError)
}

func TestAnalyzePower_InvalidParameters(t *testing.T) {
	_, err := AnalyzePower(0.1, 0.2, 0, 0.05)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = AnalyzePower(-0.1, 0.2, 100, 0.05)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = AnalyzePower(0.1, 1.2, 100, 0.05)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = AnalyzePower(0.1, 0.2, 100, 1)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
