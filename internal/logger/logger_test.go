package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestIsSensitiveKey(t *testing.T) {
	testCases := []struct {
		key       string
		sensitive bool
	}{
		{"conjurapikey", true},
		{"Authorization", true},
		{"DB_PASSWORD", true},
		{"access_token", true},
		{"conjurusername", false},
		{"path", false},
	}
	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			assert.Equal(t, tc.sensitive, IsSensitiveKey(tc.key))
		})
	}
}

func TestFieldRedactsSensitiveValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	log.Info("inputs",
		Field("conjurusername", "host/ci"),
		Field("conjurapikey", "s3cr3t-key"),
		Redacted("authorization", ""),
	)

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "host/ci", ctx["conjurusername"])
	assert.Equal(t, "***REDACTED*** (10 bytes)", ctx["conjurapikey"])
	assert.Equal(t, "", ctx["authorization"])
}

func TestInitReplacesGlobalLogger(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	require.NoError(t, Init(true, true))
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Init(false, false))
	assert.False(t, Log.Core().Enabled(zapcore.DebugLevel))
}

func TestDebugRequested(t *testing.T) {
	t.Setenv("SYSTEM_DEBUG", "True")
	assert.True(t, DebugRequested())
	t.Setenv("SYSTEM_DEBUG", "false")
	assert.False(t, DebugRequested())
}
