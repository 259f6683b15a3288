package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestEmitter_Emit(t *testing.T) {
	e := NewEmitter(EmitterConfig{})
	fixed := time.Date(2025, 3, 1, 10, 15, 0, 0, time.FixedZone("CST", 8*3600))
	e.now = func() time.Time { return fixed }

	event, err := e.Emit(EmitParams{
		SessionID: "RS_20250301_101500_a1b2c3",
		Stage:     "search",
		Status:    StatusFailed,
		Err:       errors.New("tavily search: status 401"),
		Details:   map[string]any{"category": "Regulation"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "research.search.failed", event.EventType)
	assert.Equal(t, "deep-research-service", event.Source)
	assert.Equal(t, "tavily search: status 401", event.Error)
	assert.Equal(t, fixed.UTC(), event.OccurredAt)
	assert.Equal(t, "Regulation", event.Details["category"])
}

func TestEmitter_Emit_Validation(t *testing.T) {
	e := NewEmitter(EmitterConfig{ServiceName: "svc"})

	_, err := e.Emit(EmitParams{Stage: "search", Status: StatusStarted})
	assert.ErrorContains(t, err, "session_id is required")

	_, err = e.Emit(EmitParams{SessionID: "RS_1", Status: StatusStarted})
	assert.ErrorContains(t, err, "stage is required")

	_, err = e.Emit(EmitParams{SessionID: "RS_1", Stage: "search", Status: "paused"})
	assert.ErrorContains(t, err, "invalid status")
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "events.deep_research.stages", zerolog.Nop())

	event, err := NewEmitter(EmitterConfig{}).Emit(EmitParams{SessionID: "RS_1", Stage: "final", Status: StatusCompleted})
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "RS_1", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "research.final.completed", string(w.msgs[0].Headers[0].Value))

	var decoded StageEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, StatusCompleted, decoded.Status)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, "t", zerolog.Nop())

	err := p.Publish(context.Background(), StageEvent{SessionID: "RS_1"})
	assert.ErrorContains(t, err, "broker down")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), StageEvent{Stage: "search"}))
	require.NoError(t, r.Publish(context.Background(), StageEvent{Stage: "reports"}))

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "reports", events[1].Stage)

	var nop NopPublisher
	assert.NoError(t, nop.Publish(context.Background(), StageEvent{}))
	assert.NoError(t, nop.Close())
}
