package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFieldsAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf), WithLevel("debug"))

	ctx := WithContext(context.Background(), "req-1")
	logger.Debug(ctx, "validated", map[string]interface{}{"action": "block"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "validated", line["message"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "block", line["action"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithLevel("warn"), WithOutput(&buf))

	logger.Info(context.Background(), "dropped", nil)
	assert.Zero(t, buf.Len())

	logger.Error(context.Background(), "kept", nil)
	assert.Contains(t, buf.String(), "kept")
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.Info(context.Background(), "nothing", map[string]interface{}{"k": 1})
	})
}
