package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetReplacesGlobals(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(zap.NewNop()) })

	Log().Info("one")
	S().Infow("two", "k", 1)
	zap.L().Info("three")
	Named("detector").Debug("four")
	Sync()

	require.Equal(t, 4, logs.Len())
	assert.Equal(t, "detector", logs.All()[3].LoggerName)
}

func TestInit(t *testing.T) {
	t.Cleanup(func() { Set(zap.NewNop()) })

	require.NoError(t, InitProduction())
	assert.False(t, Log().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitDevelopment())
	assert.True(t, Log().Core().Enabled(zap.DebugLevel))

	require.NoError(t, Init(false, "warn"))
	assert.False(t, Log().Core().Enabled(zap.InfoLevel))
	assert.True(t, Log().Core().Enabled(zap.WarnLevel))

	assert.Error(t, Init(true, "loud"))
}
