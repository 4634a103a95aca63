package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.False(t, cfg.DebugMode)
	assert.False(t, cfg.EnableJsonLogging)
	assert.Equal(t, 0, cfg.MetricsPort)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, "conjur_secrets", cfg.PushgatewayJob)
	assert.Empty(t, cfg.PushgatewayURL)
	assert.False(t, cfg.AllowMultilineSecrets)
}

func TestLoadAgentVariables(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"SYSTEM_UNSAFEALLOWMULTILINESECRET": "true"})
	require.NoError(t, err)
	assert.True(t, cfg.AllowMultilineSecrets)
}

func TestLoadFromProcessEnvironment(t *testing.T) {
	t.Setenv("WORKERS", "4")
	t.Setenv("METRICS_PORT", "9091")
	t.Setenv("ENABLE_JSON_LOGGING", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.True(t, cfg.EnableJsonLogging)
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name    string
		environ map[string]string
		wantErr string
	}{
		{"Negative Workers", map[string]string{"WORKERS": "-1"}, "workers cannot be negative"},
		{"Port Out Of Range", map[string]string{"METRICS_PORT": "70000"}, "invalid metrics port"},
		{"Bad Pushgateway URL", map[string]string{"PUSHGATEWAY_URL": "not a url"}, "invalid pushgateway url"},
		{"Unparsable Int", map[string]string{"WORKERS": "many"}, "config parsing error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFrom(tc.environ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
