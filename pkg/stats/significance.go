package stats

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Correction selects a multiple-comparison adjustment of alpha.
type Correction string

const (
	CorrectionNone       Correction = "none"
	CorrectionBonferroni Correction = "bonferroni"
)

// ComparisonOptions controls a family of significance tests.
type ComparisonOptions struct {
	Alpha      float64    `json:"alpha"`
	Strict     bool       `json:"strict"` // fail on missing data instead of returning neutral results
	Correction Correction `json:"correction,omitempty"`
}

func (o ComparisonOptions) validate() error {
	if err := validateAlpha(o.Alpha); err != nil {
		return err
	}
	switch o.Correction {
	case "", CorrectionNone, CorrectionBonferroni:
		return nil
	default:
		return invalidParam("correction", o.Correction, "unknown correction")
	}
}

// effectiveAlpha applies the correction for a family of m comparisons.
func (o ComparisonOptions) effectiveAlpha(m int) float64 {
	if o.Correction == CorrectionBonferroni && m > 1 {
		return o.Alpha / float64(m)
	}
	return o.Alpha
}

// TestSignificance runs a two-tailed two-proportion z-test of variant against
// control. It fails with ErrInsufficientData when either arm has no visitors
// or the unpooled standard error vanishes, which includes a 0% vs 100% split.
func TestSignificance(control, variant VariantObservation, alpha float64) (SignificanceResult, error) {
	return testSignificance(control, variant, alpha, true)
}

// TestSignificanceOrNeutral behaves like TestSignificance but returns a neutral,
// non-significant result instead of ErrInsufficientData.
func TestSignificanceOrNeutral(control, variant VariantObservation, alpha float64) (SignificanceResult, error) {
	return testSignificance(control, variant, alpha, false)
}

// NeutralResult is the "not significant" placeholder used when there is no data yet.
func NeutralResult(control, variant VariantObservation, alpha float64) SignificanceResult {
	return SignificanceResult{
		ComparisonVariant: variant.Name,
		ControlVariant:    control.Name,
		PValue:            1,
		Alpha:             alpha,
		Neutral:           true,
	}
}

func testSignificance(control, variant VariantObservation, alpha float64, strict bool) (SignificanceResult, error) {
	if err := validateAlpha(alpha); err != nil {
		return SignificanceResult{}, err
	}
	if err := control.Validate(); err != nil {
		return SignificanceResult{}, err
	}
	if err := variant.Validate(); err != nil {
		return SignificanceResult{}, err
	}

	insufficient := func(reason string) (SignificanceResult, error) {
		if strict {
			return SignificanceResult{}, fmt.Errorf("%s vs %s: %s: %w", variant.Name, control.Name, reason, ErrInsufficientData)
		}
		return NeutralResult(control, variant, alpha), nil
	}

	if control.Visitors == 0 || variant.Visitors == 0 {
		return insufficient("zero visitors")
	}

	p1 := control.ConversionRate()
	p2 := variant.ConversionRate()
	n1 := float64(control.Visitors)
	n2 := float64(variant.Visitors)

	se := math.Sqrt(p1*(1-p1)/n1 + p2*(1-p2)/n2)
	if se == 0 {
		return insufficient("zero standard error")
	}

	zCrit, err := criticalZ(alpha)
	if err != nil {
		return SignificanceResult{}, err
	}

	diff := p2 - p1
	z := diff / se
	pValue := 2 * (1 - NormalCDF(math.Abs(z)))
	pValue = math.Min(math.Max(pValue, 0), 1)

	effect := 0.0
	if p1 > 0 {
		effect = math.Abs(diff) / p1
	}

	return SignificanceResult{
		ComparisonVariant: variant.Name,
		ControlVariant:    control.Name,
		ZScore:            z,
		PValue:            pValue,
		ConfidenceInterval: Interval{
			Lower: diff - zCrit*se,
			Upper: diff + zCrit*se,
		},
		IsSignificant:      pValue < alpha,
		EffectSizeRelative: effect,
		Alpha:              alpha,
	}, nil
}

type pairIndex struct {
	control, comparison int
}

// CompareAgainstControl tests every variant against control.
func CompareAgainstControl(control VariantObservation, variants []VariantObservation, opts ComparisonOptions) ([]SignificanceResult, error) {
	all := make([]VariantObservation, 0, len(variants)+1)
	all = append(all, control)
	all = append(all, variants...)

	pairs := make([]pairIndex, 0, len(variants))
	for i := 1; i < len(all); i++ {
		pairs = append(pairs, pairIndex{control: 0, comparison: i})
	}
	return compare(all, pairs, opts, len(pairs))
}

// ComparePairwise tests every pair of non-control variants; variants[0] is
// the control and is skipped.
func ComparePairwise(variants []VariantObservation, opts ComparisonOptions) ([]SignificanceResult, error) {
	pairs := nonControlPairs(len(variants))
	return compare(variants, pairs, opts, len(pairs))
}

// Compare tests every variant against variants[0] and, when pairwise is set,
// every pair of non-control variants. Both sets form one family, so a
// correction divides alpha by the size of their union.
func Compare(variants []VariantObservation, pairwise bool, opts ComparisonOptions) (vsControl, pairs []SignificanceResult, err error) {
	if len(variants) < 2 {
		return nil, nil, invalidParam("variants", len(variants), "need a control and at least one variant")
	}

	controlPairs := make([]pairIndex, 0, len(variants)-1)
	for i := 1; i < len(variants); i++ {
		controlPairs = append(controlPairs, pairIndex{control: 0, comparison: i})
	}
	var extraPairs []pairIndex
	if pairwise {
		extraPairs = nonControlPairs(len(variants))
	}
	family := len(controlPairs) + len(extraPairs)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		vsControl, err = compare(variants, controlPairs, opts, family)
		return err
	})
	if pairwise {
		g.Go(func() error {
			var err error
			pairs, err = compare(variants, extraPairs, opts, family)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return vsControl, pairs, nil
}

func nonControlPairs(n int) []pairIndex {
	var pairs []pairIndex
	for i := 1; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, pairIndex{control: i, comparison: j})
		}
	}
	return pairs
}

// compare runs the comparisons concurrently. Output order follows pairs.
func compare(variants []VariantObservation, pairs []pairIndex, opts ComparisonOptions, family int) ([]SignificanceResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return []SignificanceResult{}, nil
	}

	alpha := opts.effectiveAlpha(family)
	results := make([]SignificanceResult, len(pairs))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, pair := range pairs {
		g.Go(func() error {
			res, err := testSignificance(variants[pair.control], variants[pair.comparison], alpha, opts.Strict)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// ResultsByPair indexes results by their variant pair.
func ResultsByPair(results []SignificanceResult) map[VariantPair]SignificanceResult {
	byPair := make(map[VariantPair]SignificanceResult, len(results))
	for _, r := range results {
		byPair[r.Pair()] = r
	}
	return byPair
}

// AnySignificant reports whether at least one comparison is significant.
func AnySignificant(results []SignificanceResult) bool {
	for _, r := range results {
		if r.IsSignificant {
			return true
		}
	}
	return false
}

// WilsonInterval returns the Wilson score interval of a conversion rate.
func WilsonInterval(conversions, visitors int64, confidence float64) (Interval, error) {
	if !inOpenUnit(confidence) {
		return Interval{}, invalidParam("confidence_level", confidence, "must be in (0,1)")
	}
	obs := VariantObservation{Visitors: visitors, Conversions: conversions}
	if err := obs.Validate(); err != nil {
		return Interval{}, err
	}
	if visitors == 0 {
		return Interval{Lower: 0, Upper: 1}, nil
	}

	z, err := criticalZ(1 - confidence)
	if err != nil {
		return Interval{}, err
	}

	n := float64(visitors)
	p := obs.ConversionRate()
	z2 := z * z

	denominator := 1 + z2/n
	center := (p + z2/(2*n)) / denominator
	margin := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denominator

	return Interval{
		Lower: math.Max(0, center-margin),
		Upper: math.Min(1, center+margin),
	}, nil
}
