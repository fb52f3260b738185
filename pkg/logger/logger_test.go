package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: level})
	return l, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_WritesJSONLine(t *testing.T) {
	l, buf := capture(LevelInfo)

	l.Info("request completed", String("method", "GET"), Int("status", 200))

	entry := decodeLine(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "request completed", entry["message"])

	fields := entry["fields"].(map[string]any)
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, float64(200), fields["status"])

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := capture(LevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("visible")
	assert.NotZero(t, buf.Len())
}

func TestLogger_WithCarriesFields(t *testing.T) {
	l, buf := capture(LevelInfo)

	l.With(String("request_id", "req-1")).Info("handled", Int("status", 204))

	fields := decodeLine(t, buf)["fields"].(map[string]any)
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, float64(204), fields["status"])

	// Родительский логгер остаётся без полей
	buf.Reset()
	l.Info("bare")
	_, hasFields := decodeLine(t, buf)["fields"]
	assert.False(t, hasFields)
}

func TestErrField(t *testing.T) {
	assert.Equal(t, "boom", Err(errors.New("boom")).Value)
	assert.Nil(t, Err(nil).Value)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
