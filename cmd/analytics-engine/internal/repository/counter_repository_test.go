package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sidd-007/experiment-analytics/pkg/stats"
)

func TestAssembleObservations(t *testing.T) {
	counters := []variantCounters{
		{VariationID: "treatment", Visitors: 1000, Conversions: 65, Revenue: 3250},
		{VariationID: "control", Visitors: 1000, Conversions: 50, Revenue: 2500},
		{VariationID: "legacy", Visitors: 10, Conversions: 1},
	}

	observations, unknown := assembleObservations([]string{"control", "treatment", "new"}, counters)

	assert.Equal(t, []stats.VariantObservation{
		{Name: "control", Visitors: 1000, Conversions: 50, Revenue: 2500},
		{Name: "treatment", Visitors: 1000, Conversions: 65, Revenue: 3250},
		{Name: "new"},
	}, observations)
	assert.Equal(t, []string{"legacy"}, unknown)
}

func TestAssembleObservations_CapsConversions(t *testing.T) {
	counters := []variantCounters{
		{VariationID: "control", Visitors: 5, Conversions: 9},
	}

	observations, unknown := assembleObservations([]string{"control", "treatment"}, counters)

	assert.Empty(t, unknown)
	assert.Equal(t, int64(5), observations[0].Conversions)
	assert.NoError(t, observations[0].Validate())
	assert.Equal(t, int64(0), observations[1].Visitors)
}
