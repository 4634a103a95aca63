package retrieve

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arwahdevops/conjursecrets/internal/logger"
	"github.com/arwahdevops/conjursecrets/internal/manifest"
	"github.com/arwahdevops/conjursecrets/internal/metrics"
	"github.com/arwahdevops/conjursecrets/internal/transport"
)

// State is the orchestrator's position in a run.
type State int32

const (
	StateIdle State = iota
	StateAuthenticating
	StateDispatching
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateDispatching:
		return "dispatching"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result summarises a run. Err aggregates every reported failure.
type Result struct {
	Dispatched int
	Published  int
	Failed     int
	Duration   time.Duration
	Err        error
}

// Succeeded reports whether no failure was reported during the run.
func (r Result) Succeeded() bool { return r.Err == nil }

// Orchestrator authenticates once and resolves every manifest reference.
type Orchestrator struct {
	source   ConfigSource
	auth     Authenticator
	secrets  SecretFetcher
	sink     VariableSink
	reporter FailureReporter

	manifest         ManifestFunc
	manifestOverride string
	workers          int
	logger           *zap.Logger
	metrics          *metrics.Store

	state         atomic.Int32
	authenticated atomic.Bool
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds the number of concurrent fetches; n <= 0 is unbounded.
func WithWorkers(n int) Option { return func(o *Orchestrator) { o.workers = n } }

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func WithMetrics(m *metrics.Store) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithManifest replaces the manifest reader.
func WithManifest(fn ManifestFunc) Option { return func(o *Orchestrator) { o.manifest = fn } }

// WithManifestPath overrides the secretsyml input.
func WithManifestPath(path string) Option {
	return func(o *Orchestrator) { o.manifestOverride = path }
}

func New(source ConfigSource, auth Authenticator, secrets SecretFetcher, sink VariableSink, reporter FailureReporter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:   source,
		auth:     auth,
		secrets:  secrets,
		sink:     sink,
		reporter: reporter,
		manifest: manifest.Parse,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.NewMetricsStore()
	}
	o.logger = o.logger.Named("orchestrator")
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev != s {
		o.logger.Debug("State transition", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Ready returns nil once authentication has succeeded.
func (o *Orchestrator) Ready() error {
	if o.authenticated.Load() {
		return nil
	}
	return errors.New("not authenticated (state: " + o.State().String() + ")")
}

// failures collects reported errors from concurrent fetches.
type failures struct {
	mu    sync.Mutex
	count int
	err   error
}

// Run reads the configuration, authenticates and resolves every reference in
// the manifest. It returns only after every dispatched fetch has settled.
func (o *Orchestrator) Run(ctx context.Context) Result {
	start := time.Now()
	o.metrics.TaskRunning.Set(1)
	defer o.metrics.TaskRunning.Set(0)

	f := &failures{}
	result := o.run(ctx, f)

	result.Duration = time.Since(start)
	result.Failed = f.count
	result.Err = f.err
	o.metrics.RunDuration.Observe(result.Duration.Seconds())

	if result.Succeeded() {
		o.setState(StateIdle)
	} else {
		o.setState(StateFailed)
	}
	return result
}

func (o *Orchestrator) run(ctx context.Context, f *failures) Result {
	runCfg, err := LoadRunConfig(o.source)
	if err != nil {
		o.fail(f, err)
		return Result{}
	}
	if o.manifestOverride != "" {
		runCfg.ManifestPath = o.manifestOverride
	}

	o.logger.Info("Starting secret retrieval",
		zap.String("host", runCfg.Endpoint.Hostname),
		zap.String("account", runCfg.Endpoint.Account),
		zap.String("authn_type", string(runCfg.Credential.Scheme)),
		zap.String("manifest", runCfg.ManifestPath),
		zap.Bool("ignore_ssl", runCfg.Endpoint.AllowInsecureTLS),
		zap.Int("workers", o.workers),
	)
	o.logger.Debug("Resolved credential",
		logger.Field(InputUsername, runCfg.Credential.Identity),
		logger.Field(InputAPIKey, runCfg.Credential.Secret),
	)

	o.setState(StateAuthenticating)
	authStart := time.Now()
	token, err := o.auth.Authenticate(ctx, runCfg.Endpoint, runCfg.Credential)
	o.metrics.AuthenticateDuration.Observe(time.Since(authStart).Seconds())
	if err != nil {
		if transport.IsStatus(err, http.StatusUnauthorized) {
			o.logger.Warn("Credential rejected; check the conjurusername and conjurapikey inputs",
				zap.String("identity", runCfg.Credential.Identity))
		}
		o.fail(f, err)
		return Result{}
	}
	o.authenticated.Store(true)
	o.logger.Info("Authenticated", zap.Duration("duration", time.Since(authStart)))

	o.setState(StateDispatching)
	return o.dispatch(ctx, runCfg, token, f)
}

// fail reports err to the host and records it. Safe for concurrent use.
func (o *Orchestrator) fail(f *failures, err error) {
	kind := ErrorKind(err)
	o.metrics.ErrorsTotal.WithLabelValues(kind).Inc()
	o.logger.Error("Task failure reported", zap.String("kind", kind), zap.Error(err))
	o.reporter.ReportFailure(err.Error())

	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	f.err = multierr.Append(f.err, err)
}
