package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sidd-007/experiment-analytics/pkg/stats"
)

// Subjects, relative to the configured prefix
const (
	SubjectAnalysisCompleted = "analysis.completed"
	SubjectWinnerDetected    = "winner.detected"
)

// conn is the subset of *nats.Conn used by the publisher.
type conn interface {
	Publish(subj string, data []byte) error
}

// AnalysisEvent announces a finished experiment analysis.
type AnalysisEvent struct {
	AnalysisID   uuid.UUID                  `json:"analysis_id"`
	ExperimentID uuid.UUID                  `json:"experiment_id"`
	Verdict      stats.Verdict              `json:"verdict"`
	Winners      []string                   `json:"winners,omitempty"`
	Comparisons  []stats.SignificanceResult `json:"comparisons"`
	GeneratedAt  time.Time                  `json:"generated_at"`
}

// Publisher emits analysis events on NATS.
type Publisher struct {
	conn   conn
	prefix string
	logger zerolog.Logger
}

// NewPublisher creates a publisher writing under prefix, e.g. "experiments".
func NewPublisher(nc conn, prefix string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:   nc,
		prefix: prefix,
		logger: logger.With().Str("component", "publisher").Logger(),
	}
}

// Subject returns the full subject for name.
func (p *Publisher) Subject(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

// PublishAnalysis publishes evt on the completed subject, and again on the
// winner subject when the analysis detected a winner.
func (p *Publisher) PublishAnalysis(ctx context.Context, evt *AnalysisEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis event: %w", err)
	}

	subjects := []string{p.Subject(SubjectAnalysisCompleted)}
	if evt.Verdict == stats.VerdictWinnerDetected {
		subjects = append(subjects, p.Subject(SubjectWinnerDetected))
	}

	for _, subject := range subjects {
		if err := p.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
	}

	p.logger.Debug().
		Str("experiment_id", evt.ExperimentID.String()).
		Str("analysis_id", evt.AnalysisID.String()).
		Str("verdict", string(evt.Verdict)).
		Strs("subjects", subjects).
		Msg("Analysis event published")

	return nil
}
