package stats

import (
	"fmt"
	"strings"
)

// Verdict is the primary conclusion of an analysis.
type Verdict string

const (
	VerdictWinnerDetected Verdict = "winner_detected"
	VerdictInconclusive   Verdict = "inconclusive"
)

// Rule thresholds.
const (
	maxRecommendedDays = 30
	minRecommendedDays = 7
	minAdequatePower   = 0.8
	highPower          = 0.95

	minControlSample = 30
	minPlausibleRate = 0.001
	maxPlausibleRate = 0.5
	minDailyTraffic  = 100
	minAlpha         = 0.01
	maxAlpha         = 0.1
)

// Warning codes.
const (
	WarnDurationTooLong = "duration_too_long"
	WarnConcludesEarly  = "may_conclude_too_early"
	WarnUnderpowered    = "underpowered"
	NoteHighPower       = "high_power"
	WarnSmallControl    = "small_control_sample"
	WarnImplausibleRate = "conversion_rate_out_of_range"
	WarnLowTraffic      = "low_daily_traffic"
	WarnAlphaOutOfRange = "alpha_out_of_range"
)

// Message is a coded human-readable remark.
type Message struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// RecommendationInput collects the outputs the rules are evaluated over.
// Nil parts are skipped. Control defaults to the control arm of the first
// comparison.
type RecommendationInput struct {
	Control     string
	Plan        *SampleSizePlan
	Power       *PowerReport
	Comparisons []SignificanceResult
	Impact      *BusinessImpact
}

// Recommendation is the synthesized guidance. Winners holds the better arm of
// every significant comparison, which may be the control.
type Recommendation struct {
	Verdict   Verdict   `json:"verdict"`
	Winners   []string  `json:"winners,omitempty"`
	Warnings  []Message `json:"warnings"`
	Notes     []Message `json:"notes"`
	NextSteps []string  `json:"next_steps"`
}

// Recommend applies the rule set to the analysis outputs.
func Recommend(in RecommendationInput) Recommendation {
	rec := Recommendation{
		Warnings: []Message{},
		Notes:    []Message{},
	}

	if in.Plan != nil {
		days := in.Plan.EstimatedDurationDays
		switch {
		case days > maxRecommendedDays:
			rec.Warnings = append(rec.Warnings, Message{
				Code: WarnDurationTooLong,
				Text: fmt.Sprintf("Test duration too long: %d days exceeds %d days; consider a larger MDE or more traffic", days, maxRecommendedDays),
			})
		case days < minRecommendedDays:
			rec.Warnings = append(rec.Warnings, Message{
				Code: WarnConcludesEarly,
				Text: fmt.Sprintf("Test may conclude too early: %d days does not cover a full weekly cycle", days),
			})
		}
	}

	if in.Power != nil {
		switch {
		case in.Power.AchievedPower < minAdequatePower:
			rec.Warnings = append(rec.Warnings, Message{
				Code: WarnUnderpowered,
				Text: fmt.Sprintf("Test is underpowered: %.1f%% power is below %.0f%%", in.Power.AchievedPower*100, minAdequatePower*100),
			})
		case in.Power.AchievedPower > highPower:
			rec.Notes = append(rec.Notes, Message{
				Code: NoteHighPower,
				Text: fmt.Sprintf("Power of %.1f%% is high; a smaller sample would suffice", in.Power.AchievedPower*100),
			})
		}
	}

	rec.Winners = winners(in.Comparisons)

	if AnySignificant(in.Comparisons) {
		rec.Verdict = VerdictWinnerDetected

		control := in.Control
		if control == "" && len(in.Comparisons) > 0 {
			control = in.Comparisons[0].ControlVariant
		}

		if beaters := beatControl(in.Comparisons, control); len(beaters) > 0 {
			rec.NextSteps = []string{
				fmt.Sprintf("Roll out %s gradually while monitoring guardrail metrics", strings.Join(beaters, " or ")),
				"Document the result and archive the experiment",
			}
			if in.Impact != nil && in.Impact.BestVariant != "" && in.Impact.BestVariant != control {
				rec.NextSteps = append(rec.NextSteps,
					fmt.Sprintf("Prioritise %s: projected yearly lift %.2f", in.Impact.BestVariant, in.Impact.YearlyRevenueLift))
			}
		} else {
			rec.NextSteps = []string{
				fmt.Sprintf("Keep %s: no variant performed significantly better", control),
				"Document the result and archive the experiment",
			}
		}
	} else {
		rec.Verdict = VerdictInconclusive
		rec.NextSteps = []string{
			"Extend the test duration to collect more data",
			"Or widen the minimum detectable effect",
		}
	}

	return rec
}

// winners returns the higher-rate arm of each significant comparison, in
// first-seen order.
func winners(comparisons []SignificanceResult) []string {
	var names []string
	seen := make(map[string]bool)
	for _, c := range comparisons {
		if !c.IsSignificant {
			continue
		}
		name := c.ComparisonVariant
		if c.ZScore < 0 {
			name = c.ControlVariant
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// beatControl returns the variants significantly better than control.
func beatControl(comparisons []SignificanceResult, control string) []string {
	var names []string
	for _, c := range comparisons {
		if c.IsSignificant && c.ControlVariant == control && c.ZScore > 0 {
			names = append(names, c.ComparisonVariant)
		}
	}
	return names
}

// AssumptionInput is what the assumption validator inspects.
type AssumptionInput struct {
	Variants     []VariantObservation // variants[0] is the control
	DailyTraffic int64
	Alpha        float64
}

// AssumptionCheck lists violated test assumptions.
type AssumptionCheck struct {
	IsValid  bool      `json:"is_valid"`
	Warnings []Message `json:"warnings"`
}

// ValidateAssumptions flags inputs for which the normal approximation or the
// test design is questionable.
func ValidateAssumptions(in AssumptionInput) AssumptionCheck {
	warnings := []Message{}

	if len(in.Variants) > 0 && in.Variants[0].Visitors < minControlSample {
		warnings = append(warnings, Message{
			Code: WarnSmallControl,
			Text: fmt.Sprintf("Control sample size %d is below %d", in.Variants[0].Visitors, minControlSample),
		})
	}

	for _, v := range in.Variants {
		rate := v.ConversionRate()
		if rate <= minPlausibleRate || rate >= maxPlausibleRate {
			warnings = append(warnings, Message{
				Code: WarnImplausibleRate,
				Text: fmt.Sprintf("Conversion rate of %s (%.4f) is outside (%.3f, %.1f)", v.Name, rate, minPlausibleRate, maxPlausibleRate),
			})
		}
	}

	if in.DailyTraffic < minDailyTraffic {
		warnings = append(warnings, Message{
			Code: WarnLowTraffic,
			Text: fmt.Sprintf("Daily traffic %d is below %d", in.DailyTraffic, minDailyTraffic),
		})
	}

	if in.Alpha < minAlpha || in.Alpha > maxAlpha {
		warnings = append(warnings, Message{
			Code: WarnAlphaOutOfRange,
			Text: fmt.Sprintf("Alpha %.3f is outside [%.2f, %.2f]", in.Alpha, minAlpha, maxAlpha),
		})
	}

	return AssumptionCheck{
		IsValid:  len(warnings) == 0,
		Warnings: warnings,
	}
}
