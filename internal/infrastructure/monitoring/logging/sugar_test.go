package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSugar_PairsKeysAndValues(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	log := Sugar(NewLoggerFromCore(core))

	log.Info("run claimed", "run_id", "r-1", "attempt", 2)

	entries := observed.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "r-1", ctx["run_id"])
	assert.Equal(t, int64(2), ctx["attempt"])
}

func TestSugar_OddTrailingValue(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	log := Sugar(NewLoggerFromCore(core))

	log.Warn("lock release failed", "run_id", "r-2", "dangling")

	entries := observed.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "r-2", ctx["run_id"])
	assert.Equal(t, "dangling", ctx["extra"])
}

func TestSugar_NonStringKey(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	log := Sugar(NewLoggerFromCore(core))

	log.Error("bad caller", 42, "value")

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap(), "invalid_key")
}
