package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("node", "gs-1")).Debug(context.Background(), "irradiance redrawn",
		Float64("normalized_irradiance", 0.93),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "irradiance redrawn", rec["msg"])
	assert.Equal(t, "gs-1", rec["node"])
	assert.InDelta(t, 0.93, rec["normalized_irradiance"], 1e-12)
	assert.Equal(t, "boom", rec["error"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Output: &buf})

	log.Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	log.Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestEnsureRunIDIsStable(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	require.NotEmpty(t, id)

	ctx2, id2 := EnsureRunID(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, id, RunIDFromContext(ctx2))
}

func TestLoggerFromContext(t *testing.T) {
	assert.Nil(t, LoggerFromContext(context.Background()))

	ctx := ContextWithLogger(context.Background(), nil)
	assert.NotNil(t, LoggerFromContext(ctx))
}
