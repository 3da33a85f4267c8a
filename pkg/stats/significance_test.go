package stats

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestSignificance_ReferenceScenario(t *testing.T) {
	control := VariantObservation{Name: "control", Visitors: 1000, Conversions: 50}
	variant := VariantObservation{Name: "treatment", Visitors: 1000, Conversions: 65}

	res, err := TestSignificance(control, variant, 0.05)
	require.NoError(t, err)

	se := math.Sqrt(0.05*0.95/1000 + 0.065*0.935/1000)
	z := 0.015 / se
	p := 2 * (1 - 0.5*(1+math.Erf(z/math.Sqrt2)))

	assert.InEpsilon(t, z, res.ZScore, 0.01)
	assert.InEpsilon(t, p, res.PValue, 0.01)
	assert.InDelta(t, 1.4415, res.ZScore, 0.001)
	assert.InDelta(t, 0.1494, res.PValue, 0.001)
	assert.False(t, res.IsSignificant)

	assert.InDelta(t, 0.015-1.959964*se, res.ConfidenceInterval.Lower, 1e-6)
	assert.InDelta(t, 0.015+1.959964*se, res.ConfidenceInterval.Upper, 1e-6)
	assert.True(t, res.ConfidenceInterval.Contains(0))
	assert.InDelta(t, 0.3, res.EffectSizeRelative, 1e-9)
	assert.Equal(t, "control", res.ControlVariant)
	assert.Equal(t, "treatment", res.ComparisonVariant)
	assert.False(t, res.Neutral)
}

func TestTestSignificance_ClearWinner(t *testing.T) {
	control := VariantObservation{Name: "A", Visitors: 1000, Conversions: 50}
	variant := VariantObservation{Name: "B", Visitors: 1000, Conversions: 100}

	res, err := TestSignificance(control, variant, 0.05)
	require.NoError(t, err)

	assert.InDelta(t, 4.264, res.ZScore, 0.001)
	assert.Less(t, res.PValue, 0.001)
	assert.True(t, res.IsSignificant)
	assert.False(t, res.ConfidenceInterval.Contains(0))
}

func TestTestSignificance_NegativeLift(t *testing.T) {
	control := VariantObservation{Name: "A", Visitors: 2000, Conversions: 200}
	variant := VariantObservation{Name: "B", Visitors: 2000, Conversions: 140}

	res, err := TestSignificance(control, variant, 0.05)
	require.NoError(t, err)

	assert.Less(t, res.ZScore, 0.0)
	assert.True(t, res.IsSignificant)
	assert.Less(t, res.ConfidenceInterval.Upper, 0.0)
	assert.InDelta(t, 0.3, res.EffectSizeRelative, 1e-9)
}

func TestTestSignificance_SignificanceMatchesAlpha(t *testing.T) {
	control := VariantObservation{Name: "A", Visitors: 5000, Conversions: 500}
	for conv := int64(440); conv <= 620; conv += 15 {
		variant := VariantObservation{Name: "B", Visitors: 5000, Conversions: conv}
		for _, alpha := range []float64{0.01, 0.05, 0.1} {
			res, err := TestSignificance(control, variant, alpha)
			require.NoError(t, err)
			assert.Equal(t, res.PValue < alpha, res.IsSignificant, "conv=%d alpha=%v", conv, alpha)
			assert.Equal(t, alpha, res.Alpha)
		}
	}
}

func TestTestSignificance_ZeroVisitors(t *testing.T) {
	empty := VariantObservation{Name: "control", Visitors: 0}
	variant := VariantObservation{Name: "treatment", Visitors: 100, Conversions: 10}

	_, err := TestSignificance(empty, variant, 0.05)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = TestSignificance(variant, empty, 0.05)
	assert.ErrorIs(t, err, ErrInsufficientData)

	res, err := TestSignificanceOrNeutral(empty, variant, 0.05)
	require.NoError(t, err)
	assert.False(t, res.IsSignificant)
	assert.Equal(t, 1.0, res.PValue)
	assert.Equal(t, Interval{}, res.ConfidenceInterval)
	assert.True(t, res.Neutral)
	assert.Equal(t, "control", res.ControlVariant)
	assert.Equal(t, "treatment", res.ComparisonVariant)
}

func TestTestSignificance_ZeroStandardError(t *testing.T) {
	a := VariantObservation{Name: "A", Visitors: 100, Conversions: 0}
	b := VariantObservation{Name: "B", Visitors: 200, Conversions: 0}

	_, err := TestSignificance(a, b, 0.05)
	assert.ErrorIs(t, err, ErrInsufficientData)

	res, err := TestSignificanceOrNeutral(a, b, 0.05)
	require.NoError(t, err)
	assert.True(t, res.Neutral)
	assert.False(t, res.IsSignificant)
}

// With both rates at 0 and 1 the unpooled standard error is zero, so even a
// complete split reports insufficient data rather than an infinite z-score.
func TestTestSignificance_DegenerateSplitHasZeroStandardError(t *testing.T) {
	control := VariantObservation{Name: "control", Visitors: 100, Conversions: 0}
	variant := VariantObservation{Name: "variant", Visitors: 100, Conversions: 100}

	_, err := TestSignificance(control, variant, 0.05)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.ErrorContains(t, err, "zero standard error")

	res, err := TestSignificanceOrNeutral(control, variant, 0.05)
	require.NoError(t, err)
	assert.True(t, res.Neutral)
	assert.False(t, res.IsSignificant)
	assert.Equal(t, 1.0, res.PValue)
	assert.Zero(t, res.ZScore)
}

func TestTestSignificance_InvalidInput(t *testing.T) {
	good := VariantObservation{Name: "A", Visitors: 100, Conversions: 10}

	tests := []struct {
		name    string
		variant VariantObservation
		alpha   float64
	}{
		{"conversions exceed visitors", VariantObservation{Name: "B", Visitors: 10, Conversions: 11}, 0.05},
		{"negative visitors", VariantObservation{Name: "B", Visitors: -1}, 0.05},
		{"negative conversions", VariantObservation{Name: "B", Visitors: 10, Conversions: -1}, 0.05},
		{"alpha zero", good, 0},
		{"alpha one", good, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TestSignificance(good, tt.variant, tt.alpha)
			assert.ErrorIs(t, err, ErrInvalidParameter)

			_, err = TestSignificanceOrNeutral(good, tt.variant, tt.alpha)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func multiArm() []VariantObservation {
	return []VariantObservation{
		{Name: "control", Visitors: 4000, Conversions: 200},
		{Name: "blue", Visitors: 4000, Conversions: 210},
		{Name: "green", Visitors: 4000, Conversions: 290},
		{Name: "red", Visitors: 4000, Conversions: 195},
	}
}

func TestCompareAgainstControl_StableOrder(t *testing.T) {
	arms := multiArm()

	results, err := CompareAgainstControl(arms[0], arms[1:], ComparisonOptions{Alpha: 0.05})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, "control", r.ControlVariant)
		assert.Equal(t, arms[i+1].Name, r.ComparisonVariant)

		single, err := TestSignificance(arms[0], arms[i+1], 0.05)
		require.NoError(t, err)
		assert.Equal(t, single, r)
	}

	assert.True(t, AnySignificant(results))
	byPair := ResultsByPair(results)
	assert.True(t, byPair[VariantPair{Control: "control", Comparison: "green"}].IsSignificant)
	assert.False(t, byPair[VariantPair{Control: "control", Comparison: "blue"}].IsSignificant)
}

func TestComparePairwise(t *testing.T) {
	arms := multiArm()

	results, err := ComparePairwise(arms, ComparisonOptions{Alpha: 0.05})
	require.NoError(t, err)

	var pairs []string
	for _, r := range results {
		pairs = append(pairs, fmt.Sprintf("%s-%s", r.ControlVariant, r.ComparisonVariant))
	}
	assert.Equal(t, []string{"blue-green", "blue-red", "green-red"}, pairs)

	byPair := ResultsByPair(results)
	greenVsRed := byPair[VariantPair{Control: "green", Comparison: "red"}]
	assert.True(t, greenVsRed.IsSignificant)
	assert.Less(t, greenVsRed.ZScore, 0.0)
}

func TestComparePairwise_TwoArmsHasNoPairs(t *testing.T) {
	results, err := ComparePairwise(multiArm()[:2], ComparisonOptions{Alpha: 0.05})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCompare_BonferroniCorrection(t *testing.T) {
	arms := multiArm()

	plain, err := CompareAgainstControl(arms[0], arms[1:], ComparisonOptions{Alpha: 0.05})
	require.NoError(t, err)
	corrected, err := CompareAgainstControl(arms[0], arms[1:], ComparisonOptions{Alpha: 0.05, Correction: CorrectionBonferroni})
	require.NoError(t, err)

	for i := range plain {
		assert.Equal(t, plain[i].PValue, corrected[i].PValue)
		assert.InDelta(t, 0.05/3, corrected[i].Alpha, 1e-12)
		assert.Equal(t, corrected[i].PValue < corrected[i].Alpha, corrected[i].IsSignificant)
		assert.GreaterOrEqual(t, corrected[i].ConfidenceInterval.Upper, plain[i].ConfidenceInterval.Upper)
	}
}

func TestCompare_StrictModePropagatesMissingData(t *testing.T) {
	arms := multiArm()
	arms[2] = VariantObservation{Name: "green"}

	_, err := CompareAgainstControl(arms[0], arms[1:], ComparisonOptions{Alpha: 0.05, Strict: true})
	assert.ErrorIs(t, err, ErrInsufficientData)

	results, err := CompareAgainstControl(arms[0], arms[1:], ComparisonOptions{Alpha: 0.05})
	require.NoError(t, err)
	assert.True(t, results[1].Neutral)
	assert.False(t, results[0].Neutral)
}

func TestCompare_UnknownCorrection(t *testing.T) {
	arms := multiArm()
	_, err := CompareAgainstControl(arms[0], arms[1:], ComparisonOptions{Alpha: 0.05, Correction: "holm"})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestWilsonInterval(t *testing.T) {
	ci, err := WilsonInterval(50, 1000, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.03813, ci.Lower, 1e-4)
	assert.InDelta(t, 0.06531, ci.Upper, 1e-4)

	ci, err = WilsonInterval(0, 0, 0.95)
	require.NoError(t, err)
	assert.Equal(t, Interval{Lower: 0, Upper: 1}, ci)

	ci, err = WilsonInterval(0, 20, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, ci.Lower, 1e-12)
	assert.Greater(t, ci.Upper, 0.0)

	_, err = WilsonInterval(5, 4, 0.95)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = WilsonInterval(5, 40, 1)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestCompare_OneCorrectionFamily(t *testing.T) {
	variants := []VariantObservation{
		{Name: "control", Visitors: 5000, Conversions: 250},
		{Name: "a", Visitors: 5000, Conversions: 270},
		{Name: "b", Visitors: 5000, Conversions: 300},
		{Name: "c", Visitors: 5000, Conversions: 320},
	}
	opts := ComparisonOptions{Alpha: 0.05, Correction: CorrectionBonferroni}

	vsControl, pairs, err := Compare(variants, true, opts)
	require.NoError(t, err)
	require.Len(t, vsControl, 3)
	require.Len(t, pairs, 3)
	for _, r := range append(vsControl, pairs...) {
		assert.InDelta(t, 0.05/6, r.Alpha, 1e-12, r.Pair())
	}

	vsControl, pairs, err = Compare(variants, false, opts)
	require.NoError(t, err)
	assert.Nil(t, pairs)
	for _, r := range vsControl {
		assert.InDelta(t, 0.05/3, r.Alpha, 1e-12, r.Pair())
	}

	_, _, err = Compare(variants[:1], true, opts)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
