package retrieve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arwahdevops/conjursecrets/internal/conjur"
	"github.com/arwahdevops/conjursecrets/internal/manifest"
)

// fetchOutcome is what a single fetch task hands back.
type fetchOutcome struct {
	ref       manifest.SecretReference
	published bool
}

// dispatch streams the manifest and starts one fetch per reference as soon
// as it is read. Fetch failures are reported individually and never cancel
// their siblings.
func (o *Orchestrator) dispatch(ctx context.Context, runCfg RunConfig, token conjur.AccessToken, f *failures) Result {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		outcomes []fetchOutcome
	)
	if o.workers > 0 {
		g.SetLimit(o.workers)
	}

	dispatched := 0
	for ref, err := range o.manifest(runCfg.ManifestPath) {
		if err != nil {
			o.fail(f, err)
			continue
		}
		if ctx.Err() != nil {
			o.fail(f, fmt.Errorf("%w: stopped reading manifest: %w", ErrTaskFailure, ctx.Err()))
			break
		}

		dispatched++
		o.metrics.ReferencesDispatched.Inc()
		g.Go(func() error {
			outcome := o.fetchAndPublish(ctx, runCfg.Endpoint, token, ref, f)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}

	o.logger.Debug("Manifest fully dispatched; waiting for fetches", zap.Int("dispatched", dispatched))
	_ = g.Wait()

	var published []string
	for _, outcome := range outcomes {
		if outcome.published {
			published = append(published, outcome.ref.Name)
		}
	}
	o.logger.Info("All fetches settled",
		zap.Int("dispatched", dispatched),
		zap.Int("published", len(published)),
		zap.Strings("variables", published),
	)
	return Result{Dispatched: dispatched, Published: len(published)}
}

func (o *Orchestrator) fetchAndPublish(ctx context.Context, endpoint conjur.Endpoint, token conjur.AccessToken, ref manifest.SecretReference, f *failures) fetchOutcome {
	log := o.logger.With(zap.String("variable", ref.Name), zap.String("path", ref.Path))
	outcome := fetchOutcome{ref: ref}

	start := time.Now()
	value, err := o.secrets.FetchSecret(ctx, endpoint, token, ref.Path)
	if err != nil {
		o.metrics.FetchDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())
		o.fail(f, err)
		return outcome
	}
	o.metrics.FetchDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())

	if err := o.sink.Publish(ref.Name, value.Reveal(), true); err != nil {
		o.fail(f, fmt.Errorf("%w: publishing variable '%s': %w", ErrTaskFailure, ref.Name, err))
		return outcome
	}
	o.metrics.SecretsPublished.Inc()
	log.Info(fmt.Sprintf("Set conjur secret '%s' to variable '%s'", ref.Path, ref.Name))
	outcome.published = true
	return outcome
}
