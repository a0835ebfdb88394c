package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	records []LifecyclePayload
	types   []string
	err     error
}

func (m *memorySink) Record(_ context.Context, taskType string, p LifecyclePayload) error {
	if m.err != nil {
		return m.err
	}
	m.types = append(m.types, taskType)
	m.records = append(m.records, p)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestProcessorRecordsEvents(t *testing.T) {
	sink := &memorySink{}
	p := NewProcessor(sink, quietLogger())

	b, err := json.Marshal(LifecyclePayload{RequestID: "r1", Status: "Arrived"})
	require.NoError(t, err)
	require.NoError(t, p.Mux().ProcessTask(context.Background(), asynq.NewTask(TaskRequestArrived, b)))

	require.Len(t, sink.records, 1)
	assert.Equal(t, TaskRequestArrived, sink.types[0])
	assert.Equal(t, "Arrived", sink.records[0].Status)
}

func TestProcessorMalformedPayloadSkipsRetry(t *testing.T) {
	p := NewProcessor(&memorySink{}, quietLogger())
	err := p.Mux().ProcessTask(context.Background(), asynq.NewTask(TaskRequestCreated, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessorSinkFailureRetries(t *testing.T) {
	p := NewProcessor(&memorySink{err: errors.New("db down")}, quietLogger())
	b, _ := json.Marshal(LifecyclePayload{RequestID: "r1"})
	err := p.Mux().ProcessTask(context.Background(), asynq.NewTask(TaskRequestCreated, b))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}
