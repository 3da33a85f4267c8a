package stats

import (
	"fmt"
)

// Projection constants.
const (
	daysPerMonth   = 30
	monthsPerYear  = 12
	roiOptimistic  = 1.5
	roiPessimistic = 0.5

	// NeverBreaksEven is reported as BreakEvenDays when there is no positive lift.
	NeverBreaksEven = -1.0
)

// ProjectImpact converts the conversion delta between the best arm and the
// control (variants[0]) into revenue lift, cost and ROI scenarios.
//
// The optimistic and pessimistic ROI are fixed 1.5x and 0.5x multiples of the
// realistic ROI, not a propagated confidence band.
func ProjectImpact(variants []VariantObservation, assumptions BusinessAssumptions) (BusinessImpact, error) {
	if len(variants) < 2 {
		return BusinessImpact{}, invalidParam("variants", len(variants), "need a control and at least one variant")
	}
	for _, v := range variants {
		if err := v.Validate(); err != nil {
			return BusinessImpact{}, err
		}
	}
	if err := assumptions.Validate(); err != nil {
		return BusinessImpact{}, err
	}

	control := variants[0]
	best := BestVariant(variants)

	daily := float64(best.Conversions-control.Conversions) * assumptions.AverageOrderValue
	monthly := daily * daysPerMonth
	yearly := monthly * monthsPerYear
	duration := float64(assumptions.TestDurationDays)
	testCost := float64(assumptions.DailyTraffic) * assumptions.CostPerVisitor * duration

	impact := BusinessImpact{
		BestVariant:        best.Name,
		DailyRevenueLift:   daily,
		MonthlyRevenueLift: monthly,
		YearlyRevenueLift:  yearly,
		TestCost:           testCost,
		OpportunityCost:    daily * duration * (1 - 1/float64(len(variants))),
		BreakEvenDays:      NeverBreaksEven,
	}
	if daily > 0 {
		impact.BreakEvenDays = testCost / daily
	}

	if assumptions.SkipROI {
		return impact, nil
	}
	if testCost == 0 {
		return BusinessImpact{}, fmt.Errorf("ROI with zero test cost: %w", ErrDivisionByZero)
	}

	impact.ROIRealistic = yearly / testCost * 100
	impact.ROIOptimistic = impact.ROIRealistic * roiOptimistic
	impact.ROIPessimistic = impact.ROIRealistic * roiPessimistic

	return impact, nil
}

// BestVariant returns the arm with the highest observed conversion rate.
// Ties keep the earliest arm, so the control wins a tie.
func BestVariant(variants []VariantObservation) VariantObservation {
	var best VariantObservation
	for i, v := range variants {
		if i == 0 || v.ConversionRate() > best.ConversionRate() {
			best = v
		}
	}
	return best
}
