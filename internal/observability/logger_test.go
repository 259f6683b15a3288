package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLogger(t *testing.T) {
	t.Run("creates logger with default config", func(t *testing.T) {
		cfg := DefaultLoggingConfig()
		logger := NewLogger(cfg)

		// Logger should be valid (non-zero)
		assert.NotEqual(t, zerolog.Logger{}, logger)
	})

	t.Run("creates logger with debug level", func(t *testing.T) {
		cfg := LoggingConfig{
			Level:  "debug",
			Format: "json",
			Output: "stdout",
		}
		logger := NewLogger(cfg)

		// Debug level should be enabled
		assert.NotEqual(t, zerolog.Logger{}, logger)
	})

	t.Run("creates logger with console format", func(t *testing.T) {
		cfg := LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		}
		logger := NewLogger(cfg)

		assert.NotEqual(t, zerolog.Logger{}, logger)
	})

	t.Run("creates logger with pretty format", func(t *testing.T) {
		cfg := LoggingConfig{
			Level:  "info",
			Format: "pretty",
			Output: "stderr",
		}
		logger := NewLogger(cfg)

		assert.NotEqual(t, zerolog.Logger{}, logger)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"TRACE", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"FATAL", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"PANIC", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseLevel(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	return logEntry
}

func TestNewLoggerWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "kept", logEntry["message"])
	assert.Contains(t, logEntry, "time")
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	logger := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: path})
	logger.Info().Msg("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestWithSessionContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithSessionContext(logger, "RS_20250301_101500_a1b2c3")
	enriched.Info().Msg("test message")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "RS_20250301_101500_a1b2c3", logEntry["session_id"])
	assert.Equal(t, "test message", logEntry["message"])
}

func TestWithCategoryContext(t *testing.T) {
	t.Run("with query", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithCategoryContext(zerolog.New(&buf), "Market", "ev sales 2024")
		logger.Info().Msg("search")

		logEntry := decodeEntry(t, &buf)
		assert.Equal(t, "Market", logEntry["category"])
		assert.Equal(t, "ev sales 2024", logEntry["query"])
	})

	t.Run("without query", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithCategoryContext(zerolog.New(&buf), "Market", "")
		logger.Info().Msg("synthesize")

		logEntry := decodeEntry(t, &buf)
		assert.Equal(t, "Market", logEntry["category"])
		assert.NotContains(t, logEntry, "query")
	})
}

func TestWithWorkflowContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithWorkflowContext(logger, "wf-123", "run-456")
	enriched.Info().Msg("workflow step")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "wf-123", logEntry["workflow_id"])
	assert.Equal(t, "run-456", logEntry["workflow_run_id"])
}

func TestWithActivityContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithActivityContext(logger, "ExecuteSearch", 3)
	enriched.Info().Msg("activity retry")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "ExecuteSearch", logEntry["activity_type"])
	assert.Equal(t, float64(3), logEntry["attempt"])
}

func TestLoggerContextChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithSessionContext(logger, "RS_1")
	enriched = WithStageContext(enriched, "search")
	enriched = WithCategoryContext(enriched, "Policy", "subsidies")
	enriched.Info().Msg("chained context")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "RS_1", logEntry["session_id"])
	assert.Equal(t, "search", logEntry["stage"])
	assert.Equal(t, "Policy", logEntry["category"])
	assert.Equal(t, "subsidies", logEntry["query"])
}

func TestLoggerFromContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	ctx = WithSessionID(ctx, "RS_9")

	assert.Equal(t, "req-9", RequestIDFromContext(ctx))
	assert.Equal(t, "RS_9", SessionIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))

	var buf bytes.Buffer
	logger := LoggerFromContext(ctx, zerolog.New(&buf))
	logger.Info().Msg("ctx")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "req-9", logEntry["request_id"])
	assert.Equal(t, "RS_9", logEntry["session_id"])
}
