package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesToFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "engine.log")

	log, err := New(cfg)
	require.NoError(t, err)

	log.Info("pool created", zap.String("pool", "test"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pool created")
	assert.Contains(t, string(data), `"pool":"test"`)
}

func TestDevelopmentEnablesDebug(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "engine.log")
	cfg.Development = true

	log, err := New(cfg)
	require.NoError(t, err)

	log.Debug("instruction applied")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "instruction applied")
}

func TestWithOperationAddsCorrelation(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &Logger{Logger: zap.New(core)}

	log.WithOperation("swap").Info("done")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "swap", fields["operation"])
	assert.NotEmpty(t, fields["correlation_id"])
}
