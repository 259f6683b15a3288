package observability

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestTemporalLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTemporalLogger(zerolog.New(&buf))

	logger.Info("workflow started", "WorkflowID", "wf-1", "Attempt", 1)

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "temporal-sdk", logEntry["component"])
	assert.Equal(t, "wf-1", logEntry["WorkflowID"])
	assert.Equal(t, float64(1), logEntry["Attempt"])
	assert.Equal(t, "info", logEntry["level"])
}

func TestTemporalLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTemporalLogger(zerolog.New(&buf)).With("Namespace", "default")

	logger.Warn("slow activity", "dangling")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "default", logEntry["Namespace"])
	assert.Contains(t, logEntry, "dangling")
	assert.Equal(t, "warn", logEntry["level"])
}

func TestKeyvalToMap_NonStringKey(t *testing.T) {
	m := keyvalToMap([]interface{}{42, "answer"})
	assert.Equal(t, "answer", m["42"])
}
