package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arwahdevops/conjursecrets/internal/config"
	"github.com/arwahdevops/conjursecrets/internal/metrics"
)

// ReadinessFunc returns nil once the task can serve its purpose.
type ReadinessFunc func() error

// NewMux builds the handler for /metrics, /healthz, /readyz and, when
// enabled, /debug/pprof.
func NewMux(cfg *config.Config, metricsStore *metrics.Store, ready ReadinessFunc, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(metricsStore.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		var err error
		if ready != nil {
			err = ready()
		}
		if err == nil {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "Ready")
			return
		}
		log.Debug("Readiness check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "Not Ready: %v\n", err)
	})

	if cfg.EnablePprof {
		log.Info("Enabling pprof endpoints on /debug/pprof/")
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// RunHTTPServer serves NewMux on cfg.MetricsPort until ctx is cancelled.
func RunHTTPServer(ctx context.Context, cfg *config.Config, metricsStore *metrics.Store, ready ReadinessFunc, logger *zap.Logger) {
	log := logger.Named("http-server")

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      NewMux(cfg, metricsStore, ready, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server ListenAndServe error", zap.Error(err))
		}
		log.Info("HTTP server stopped listening")
	}()

	<-ctx.Done()
	log.Info("Shutting down HTTP server due to context cancellation...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		log.Info("HTTP server gracefully stopped")
	}
}
