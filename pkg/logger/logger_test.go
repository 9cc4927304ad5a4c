package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestLogger_KeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: INFO, Format: JSON, Output: &buf, Service: "availability"})

	log.Info("slot booked", "slot_id", "s-1", "attempt", 2, "error", errors.New("none"))

	line := decodeLine(t, &buf)
	assert.Equal(t, "slot booked", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "availability", line["service"])
	assert.Equal(t, "s-1", line["slot_id"])
	assert.EqualValues(t, 2, line["attempt"])
	assert.Equal(t, "none", line["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: WARN, Output: &buf})

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.Equal(t, "warn", decodeLine(t, &buf)["level"])
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf}).With("provider_id", "p-7")

	log.Error("rule conflict", "rule_id", "r-1")

	line := decodeLine(t, &buf)
	assert.Equal(t, "p-7", line["provider_id"])
	assert.Equal(t, "r-1", line["rule_id"])
}

func TestLogger_OddArgsIgnoresDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf})

	log.Info("odd", "a", 1, "dangling")

	line := decodeLine(t, &buf)
	assert.EqualValues(t, 1, line["a"])
	_, ok := line["dangling"]
	assert.False(t, ok)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Info("nothing", "k", "v")
	})
}
