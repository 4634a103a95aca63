package config

import (
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v8"
)

// Config holds runtime settings of the task process itself. Task inputs
// (appliance URL, account, credentials, manifest path) are read through the
// host's ConfigSource instead.
type Config struct {
	// Observability & Debugging
	DebugMode         bool `env:"DEBUG_MODE" envDefault:"false"`
	EnableJsonLogging bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"` // Log in JSON format
	EnablePprof       bool `env:"ENABLE_PPROF" envDefault:"false"`
	MetricsPort       int  `env:"METRICS_PORT" envDefault:"0"` // 0 disables /metrics, /healthz, /readyz

	// Pushgateway for short-lived runs; empty disables the push.
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
	PushgatewayJob string `env:"PUSHGATEWAY_JOB" envDefault:"conjur_secrets"`

	// Workers bounds concurrent fetches. 0 means one goroutine per reference.
	Workers int `env:"WORKERS" envDefault:"0"`

	// Set by the agent when the pipeline opts into multi-line secrets.
	AllowMultilineSecrets bool `env:"SYSTEM_UNSAFEALLOWMULTILINESECRET" envDefault:"false"`
}

// Load parses Config from the process environment.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses Config from environ, or from the process environment when
// environ is nil.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config parsing error: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	if cfg.PushgatewayURL != "" {
		u, err := url.Parse(cfg.PushgatewayURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid pushgateway url: %s", cfg.PushgatewayURL)
		}
		if cfg.PushgatewayJob == "" {
			return fmt.Errorf("pushgateway job name cannot be empty")
		}
	}
	return nil
}
