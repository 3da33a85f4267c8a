package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectImpact(t *testing.T) {
	variants := []VariantObservation{
		{Name: "control", Visitors: 1000, Conversions: 50},
		{Name: "treatment", Visitors: 1000, Conversions: 65},
	}
	assumptions := BusinessAssumptions{
		DailyTraffic:      2000,
		CostPerVisitor:    0.5,
		AverageOrderValue: 40,
		TestDurationDays:  14,
	}

	impact, err := ProjectImpact(variants, assumptions)
	require.NoError(t, err)

	assert.Equal(t, "treatment", impact.BestVariant)
	assert.InDelta(t, 600, impact.DailyRevenueLift, 1e-9)
	assert.InDelta(t, 18000, impact.MonthlyRevenueLift, 1e-9)
	assert.InDelta(t, 216000, impact.YearlyRevenueLift, 1e-9)
	assert.InDelta(t, 14000, impact.TestCost, 1e-9)
	assert.InDelta(t, 4200, impact.OpportunityCost, 1e-9)
	assert.InDelta(t, 14000.0/600, impact.BreakEvenDays, 1e-9)

	realistic := 216000.0 / 14000 * 100
	assert.InDelta(t, realistic, impact.ROIRealistic, 1e-9)
	assert.InDelta(t, realistic*1.5, impact.ROIOptimistic, 1e-9)
	assert.InDelta(t, realistic*0.5, impact.ROIPessimistic, 1e-9)
}

func TestProjectImpact_ControlIsBest(t *testing.T) {
	variants := []VariantObservation{
		{Name: "control", Visitors: 1000, Conversions: 80},
		{Name: "b", Visitors: 1000, Conversions: 60},
		{Name: "c", Visitors: 1000, Conversions: 80},
	}
	assumptions := BusinessAssumptions{DailyTraffic: 1000, CostPerVisitor: 1, AverageOrderValue: 10, TestDurationDays: 7}

	impact, err := ProjectImpact(variants, assumptions)
	require.NoError(t, err)

	assert.Equal(t, "control", impact.BestVariant)
	assert.Zero(t, impact.DailyRevenueLift)
	assert.Zero(t, impact.ROIRealistic)
	assert.Equal(t, NeverBreaksEven, impact.BreakEvenDays)
}

func TestProjectImpact_BestVariantByRateNotCount(t *testing.T) {
	variants := []VariantObservation{
		{Name: "control", Visitors: 1000, Conversions: 50},
		{Name: "big", Visitors: 5000, Conversions: 200},
		{Name: "small", Visitors: 500, Conversions: 40},
	}
	assert.Equal(t, "small", BestVariant(variants).Name)
}

func TestProjectImpact_ZeroCost(t *testing.T) {
	variants := []VariantObservation{
		{Name: "control", Visitors: 1000, Conversions: 50},
		{Name: "treatment", Visitors: 1000, Conversions: 65},
	}
	assumptions := BusinessAssumptions{DailyTraffic: 1000, CostPerVisitor: 0, AverageOrderValue: 25, TestDurationDays: 14}

	_, err := ProjectImpact(variants, assumptions)
	require.ErrorIs(t, err, ErrDivisionByZero)

	assumptions.SkipROI = true
	impact, err := ProjectImpact(variants, assumptions)
	require.NoError(t, err)
	assert.Zero(t, impact.ROIRealistic)
	assert.Zero(t, impact.ROIOptimistic)
	assert.Zero(t, impact.ROIPessimistic)
	assert.InDelta(t, 375, impact.DailyRevenueLift, 1e-9)
	assert.Zero(t, impact.BreakEvenDays)
}

func TestProjectImpact_InvalidInput(t *testing.T) {
	assumptions := BusinessAssumptions{DailyTraffic: 1000, CostPerVisitor: 1, TestDurationDays: 14}

	_, err := ProjectImpact([]VariantObservation{{Name: "control", Visitors: 10}}, assumptions)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = ProjectImpact([]VariantObservation{
		{Name: "control", Visitors: 10, Conversions: 20},
		{Name: "b", Visitors: 10},
	}, assumptions)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	assumptions.DailyTraffic = 0
	_, err = ProjectImpact([]VariantObservation{
		{Name: "control", Visitors: 10},
		{Name: "b", Visitors: 10},
	}, assumptions)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
