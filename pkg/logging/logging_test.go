package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn, NewJSONTransport(&buf))
	ctx := context.Background()

	logger.Info(ctx, "hidden", nil)
	logger.Warn(ctx, "shown", map[string]interface{}{"attempt": 2})

	var rec LogRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, LevelWarn, rec.Level)
	assert.Equal(t, "shown", rec.Message)
	assert.EqualValues(t, 2, rec.Fields["attempt"])
}

func TestLogger_NamedSharesSink(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(LevelError, NewJSONTransport(&buf))
	child := root.Named("runner").Named("planner")

	root.SetLevel(LevelDebug)
	child.Debug(context.Background(), "step", nil)

	var rec LogRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "runner.planner", rec.Component)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{" INFO ", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConsoleTransport(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, NewConsoleTransport(&buf, true))

	logger.Named("breaker").Info(context.Background(), "state changed", map[string]interface{}{"to": "open"})

	out := buf.String()
	assert.Contains(t, out, "state changed")
	assert.Contains(t, out, "component=breaker")
	assert.Contains(t, out, "to=open")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, NewJSONTransport(&buf))

	ctx := WithFields(context.Background(), map[string]interface{}{"run_id": "r1", "role": "planner"})
	ctx = WithFields(ctx, map[string]interface{}{"role": "designer"})
	logger.Info(ctx, "agent started", map[string]interface{}{"iteration": 1})

	var rec LogRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "r1", rec.Fields["run_id"])
	assert.Equal(t, "designer", rec.Fields["role"])
	assert.EqualValues(t, 1, rec.Fields["iteration"])

	// 调用点字段不会写回 ctx
	assert.NotContains(t, FieldsFrom(ctx), "iteration")
}
