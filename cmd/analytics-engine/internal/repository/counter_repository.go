package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog"

	"github.com/Sidd-007/experiment-analytics/pkg/stats"
)

// CounterRepository aggregates per-variant counters from the event warehouse.
type CounterRepository interface {
	GetVariantCounters(ctx context.Context, q *CounterQuery) ([]stats.VariantObservation, error)
}

type counterRepository struct {
	db     clickhouse.Conn
	logger zerolog.Logger
}

func NewCounterRepository(db clickhouse.Conn, logger zerolog.Logger) CounterRepository {
	return &counterRepository{
		db:     db,
		logger: logger.With().Str("repository", "counters").Logger(),
	}
}

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CounterQuery selects the events counted for one experiment.
// Variants fixes the output order; Variants[0] is the control.
type CounterQuery struct {
	ExperimentID     string
	Variants         []string
	ConversionMetric string
	RevenueMetric    string
	TimeRange        TimeRange
}

// variantCounters is one warehouse row.
type variantCounters struct {
	VariationID string
	Visitors    uint64
	Conversions uint64
	Revenue     float64
}

// Visitors are unique exposed users; conversions are unique users that
// emitted the conversion metric; revenue sums the revenue metric.
const variantCountersQuery = `
	SELECT
		e.variation_id,
		e.visitors,
		m.conversions,
		m.revenue
	FROM (
		SELECT variation_id, uniqExact(user_id) AS visitors
		FROM events_exposure
		WHERE experiment_id = ?
			AND timestamp >= ?
			AND timestamp <= ?
		GROUP BY variation_id
	) AS e
	LEFT JOIN (
		SELECT
			variation_id,
			uniqExactIf(user_id, metric_name = ?) AS conversions,
			sumIf(value, metric_name = ?) AS revenue
		FROM events_metric
		WHERE experiment_id = ?
			AND timestamp >= ?
			AND timestamp <= ?
		GROUP BY variation_id
	) AS m ON e.variation_id = m.variation_id
	ORDER BY e.variation_id`

func (r *counterRepository) GetVariantCounters(ctx context.Context, q *CounterQuery) ([]stats.VariantObservation, error) {
	rows, err := r.db.Query(ctx, variantCountersQuery,
		q.ExperimentID, q.TimeRange.Start, q.TimeRange.End,
		q.ConversionMetric, q.RevenueMetric,
		q.ExperimentID, q.TimeRange.Start, q.TimeRange.End,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query variant counters: %w", err)
	}
	defer rows.Close()

	var counters []variantCounters
	for rows.Next() {
		var c variantCounters
		if err := rows.Scan(&c.VariationID, &c.Visitors, &c.Conversions, &c.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan variant counters: %w", err)
		}
		counters = append(counters, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variant counters: %w", err)
	}

	observations, unknown := assembleObservations(q.Variants, counters)
	if len(unknown) > 0 {
		r.logger.Warn().
			Str("experiment_id", q.ExperimentID).
			Strs("variations", unknown).
			Msg("Ignoring exposures for variations not in the experiment plan")
	}

	r.logger.Debug().
		Str("experiment_id", q.ExperimentID).
		Int("variations", len(counters)).
		Time("start", q.TimeRange.Start).
		Time("end", q.TimeRange.End).
		Msg("Retrieved variant counters")

	return observations, nil
}

// assembleObservations orders warehouse rows by the planned variants. Planned
// variants without rows get zero counters; rows for unplanned variations are
// reported back. Conversions are capped at visitors since a converting user
// may have been exposed before the window started.
func assembleObservations(variants []string, counters []variantCounters) ([]stats.VariantObservation, []string) {
	byVariation := make(map[string]variantCounters, len(counters))
	for _, c := range counters {
		byVariation[c.VariationID] = c
	}

	observations := make([]stats.VariantObservation, len(variants))
	for i, name := range variants {
		c := byVariation[name]
		conversions := c.Conversions
		if conversions > c.Visitors {
			conversions = c.Visitors
		}
		observations[i] = stats.VariantObservation{
			Name:        name,
			Visitors:    int64(c.Visitors),
			Conversions: int64(conversions),
			Revenue:     c.Revenue,
		}
		delete(byVariation, name)
	}

	var unknown []string
	for _, c := range counters {
		if _, ok := byVariation[c.VariationID]; ok {
			unknown = append(unknown, c.VariationID)
		}
	}

	return observations, unknown
}
