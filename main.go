// main.go
package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arwahdevops/conjursecrets/internal/azdo"
	"github.com/arwahdevops/conjursecrets/internal/config"
	"github.com/arwahdevops/conjursecrets/internal/conjur"
	"github.com/arwahdevops/conjursecrets/internal/logger"
	"github.com/arwahdevops/conjursecrets/internal/metrics"
	"github.com/arwahdevops/conjursecrets/internal/retrieve"
	"github.com/arwahdevops/conjursecrets/internal/server"
	"github.com/arwahdevops/conjursecrets/internal/transport"
)

var (
	secretsYmlOverride  string
	workersOverride     int
	metricsPortOverride int
	debugOverride       bool
)

func main() {
	flag.StringVar(&secretsYmlOverride, "secrets-yml", "", "Override the secretsyml task input")
	flag.IntVar(&workersOverride, "workers", 0, "Override WORKERS (must be > 0)")
	flag.IntVar(&metricsPortOverride, "metrics-port", 0, "Override METRICS_PORT")
	flag.BoolVar(&debugOverride, "debug", false, "Enable debug logging")
	flag.Parse()

	// Local runs may keep INPUT_* and process settings in .env; on an agent the
	// file is absent and the real environment is used as is.
	if err := godotenv.Overload(".env"); err != nil && !os.IsNotExist(err) {
		stdlog.Printf("Warning: Could not load .env file: %v. Relying on environment variables.\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Configuration loading error from environment: %v", err)
	}
	applyCliOverrides(cfg)

	if err := logger.Init(cfg.DebugMode || logger.DebugRequested(), cfg.EnableJsonLogging); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Log.Sync() }()

	logLoadedConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsStore := metrics.NewMetricsStore()

	httpTransport := transport.New(logger.Log)
	commands := azdo.NewCommands(os.Stdout, logger.Log)
	commands.AllowMultilineSecrets = cfg.AllowMultilineSecrets

	opts := []retrieve.Option{
		retrieve.WithWorkers(cfg.Workers),
		retrieve.WithLogger(logger.Log),
		retrieve.WithMetrics(metricsStore),
	}
	if secretsYmlOverride != "" {
		opts = append(opts, retrieve.WithManifestPath(secretsYmlOverride))
	}
	orchestrator := retrieve.New(
		azdo.NewInputsFromEnvironment(),
		conjur.NewAuthClient(httpTransport, logger.Log),
		conjur.NewSecretClient(httpTransport, logger.Log),
		commands,
		commands,
		opts...,
	)

	serverCtx, stopServer := context.WithCancel(ctx)
	serverDone := make(chan struct{})
	if cfg.MetricsPort > 0 {
		go func() {
			defer close(serverDone)
			server.RunHTTPServer(serverCtx, cfg, metricsStore, orchestrator.Ready, logger.Log)
		}()
	} else {
		close(serverDone)
	}

	logger.Log.Info("Starting conjur secret retrieval...")
	result := orchestrator.Run(ctx)
	exitCode := processResult(result)
	if result.Succeeded() {
		if err := commands.Complete(fmt.Sprintf("Set %d variable(s) from conjur", result.Published)); err != nil {
			logger.Log.Error("Failed to report task success to the agent", zap.Error(err))
		}
	}

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metricsStore.Push(pushCtx, cfg.PushgatewayURL, cfg.PushgatewayJob); err != nil {
			logger.Log.Warn("Failed to push metrics", zap.String("pushgateway", cfg.PushgatewayURL), zap.Error(err))
		}
		cancel()
	}

	stopServer()
	<-serverDone

	logger.Log.Info("Shutdown complete. Exiting.", zap.Int("exit_code", exitCode))
	_ = logger.Log.Sync()
	os.Exit(exitCode)
}

// applyCliOverrides applies CLI flags on top of the environment config.
func applyCliOverrides(cfg *config.Config) {
	if workersOverride > 0 {
		cfg.Workers = workersOverride
	}
	if metricsPortOverride > 0 {
		cfg.MetricsPort = metricsPortOverride
	}
	if debugOverride {
		cfg.DebugMode = true
	}
}

func logLoadedConfig(cfg *config.Config) {
	logger.Log.Info("Final configuration in use",
		zap.Int("workers", cfg.Workers),
		zap.String("secrets_yml_override", secretsYmlOverride),
		zap.Bool("json_logging", cfg.EnableJsonLogging),
		zap.Bool("enable_pprof", cfg.EnablePprof),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.Bool("debug_mode", cfg.DebugMode),
		zap.Bool("pushgateway_enabled", cfg.PushgatewayURL != ""),
		zap.String("pushgateway_job", cfg.PushgatewayJob),
		zap.Bool("allow_multiline_secrets", cfg.AllowMultilineSecrets),
	)
}

// processResult logs the run summary and picks the exit code. Failures were
// already reported to the agent one by one; the exit code only makes the
// step's status obvious when the task runs outside an agent.
func processResult(res retrieve.Result) (exitCode int) {
	fields := []zap.Field{
		zap.Int("dispatched", res.Dispatched),
		zap.Int("published", res.Published),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration),
	}
	if res.Succeeded() {
		if res.Dispatched == 0 {
			logger.Log.Warn("Retrieval finished, but the manifest listed no secrets.", fields...)
			return 0
		}
		logger.Log.Info("Retrieval SUCCEEDED.", fields...)
		return 0
	}

	errs := multierr.Errors(res.Err)
	kinds := make(map[string]int, len(errs))
	for _, err := range errs {
		kinds[retrieve.ErrorKind(err)]++
	}
	fields = append(fields, zap.Errors("errors", errs), zap.Any("failures_by_kind", kinds))
	logger.Log.Error(fmt.Sprintf("Retrieval FAILED with %d reported failure(s).", len(errs)), fields...)
	return 1
}
