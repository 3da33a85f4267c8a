package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sidd-007/experiment-analytics/pkg/stats"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	messages []message
	err      error
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message{subject: subj, data: data})
	return nil
}

func TestPublishAnalysis_Inconclusive(t *testing.T) {
	nc := &fakeConn{}
	p := NewPublisher(nc, "experiments", zerolog.Nop())

	evt := &AnalysisEvent{
		AnalysisID:   uuid.New(),
		ExperimentID: uuid.New(),
		Verdict:      stats.VerdictInconclusive,
		GeneratedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishAnalysis(context.Background(), evt))

	require.Len(t, nc.messages, 1)
	assert.Equal(t, "experiments.analysis.completed", nc.messages[0].subject)

	var decoded AnalysisEvent
	require.NoError(t, json.Unmarshal(nc.messages[0].data, &decoded))
	assert.Equal(t, evt.ExperimentID, decoded.ExperimentID)
	assert.Equal(t, stats.VerdictInconclusive, decoded.Verdict)
}

func TestPublishAnalysis_Winner(t *testing.T) {
	nc := &fakeConn{}
	p := NewPublisher(nc, "experiments", zerolog.Nop())

	evt := &AnalysisEvent{
		AnalysisID:   uuid.New(),
		ExperimentID: uuid.New(),
		Verdict:      stats.VerdictWinnerDetected,
		Winners:      []string{"green"},
	}
	require.NoError(t, p.PublishAnalysis(context.Background(), evt))

	require.Len(t, nc.messages, 2)
	assert.Equal(t, "experiments.analysis.completed", nc.messages[0].subject)
	assert.Equal(t, "experiments.winner.detected", nc.messages[1].subject)
}

func TestPublishAnalysis_Errors(t *testing.T) {
	nc := &fakeConn{err: errors.New("nats: connection closed")}
	p := NewPublisher(nc, "", zerolog.Nop())

	assert.Equal(t, "analysis.completed", p.Subject(SubjectAnalysisCompleted))
	assert.Error(t, p.PublishAnalysis(context.Background(), &AnalysisEvent{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewPublisher(&fakeConn{}, "x", zerolog.Nop()).PublishAnalysis(ctx, &AnalysisEvent{}), context.Canceled)
}
