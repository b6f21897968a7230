// Package gate orchestrates the access-control decision for connecting
// clients: it merges static and persisted rules into a live projection,
// decides admit/drop per session, and applies rule mutations.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/developingchet/sessiongate/internal/bus"
	"github.com/developingchet/sessiongate/internal/config"
	"github.com/developingchet/sessiongate/internal/engine"
	"github.com/developingchet/sessiongate/internal/pool"
	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/developingchet/sessiongate/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Gate wires together the reloader, controller, mutation pool, bus, and the
// HTTP surfaces.
type Gate struct {
	cfg      *config.Config
	ctrl     *Controller
	reloader *Reloader
	jobs     *pool.Pool
	log      zerolog.Logger
}

// New constructs a fully wired Gate. repo and cache may be nil when
// persistence is disabled.
func New(cfg *config.Config, repo storage.Repository, cache *storage.Cache,
	b *bus.Bus, log zerolog.Logger) (*Gate, error) {

	snap := &rules.Snapshot{}
	reloader := NewReloader(repo, cache, snap, staticRules(cfg), cfg.ReloadInterval, log)

	jobs, err := pool.New(pool.Config{
		Workers:    cfg.PoolWorkers,
		QueueDepth: cfg.PoolQueueDepth,
		MaxRetries: cfg.PoolMaxRetries,
		RetryBase:  cfg.PoolRetryBase,
	}, MakeMutationHandler(repo, reloader, log), log)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	ctrl := NewController(b, repo, snap, jobs, decisionParams(cfg), log)
	ctrl.Register()

	return &Gate{
		cfg:      cfg,
		ctrl:     ctrl,
		reloader: reloader,
		jobs:     jobs,
		log:      log,
	}, nil
}

// Controller exposes the decision and mutation entry points.
func (g *Gate) Controller() *Controller {
	return g.ctrl
}

// ApplyConfig swaps the reloadable parts of the configuration (decision
// parameters and static rule lists) and triggers an immediate rebuild.
func (g *Gate) ApplyConfig(cfg *config.Config) {
	g.ctrl.ApplyParams(decisionParams(cfg))
	g.reloader.SetStatic(staticRules(cfg))
	g.reloader.Kick("config_reload")
}

// Run starts all goroutines and blocks until ctx is cancelled or a fatal
// error occurs.
func (g *Gate) Run(ctx context.Context) error {
	gr, gctx := errgroup.WithContext(ctx)

	g.jobs.Start(gctx)

	gr.Go(func() error {
		return g.reloader.Run(gctx)
	})

	gr.Go(func() error {
		api := NewAPI(g.ctrl, g.ctrl.repo, g.cfg.APIAddr, g.log)
		return api.Run(gctx)
	})

	if g.cfg.MetricsEnabled {
		gr.Go(func() error {
			return g.serveMetrics(gctx)
		})
	}

	if err := gr.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	g.jobs.Stop()
	return nil
}

// serveMetrics runs the Prometheus HTTP server.
func (g *Gate) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    g.cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	g.log.Info().Str("addr", g.cfg.MetricsAddr).Msg("Prometheus metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func decisionParams(cfg *config.Config) engine.Params {
	return engine.Params{
		Mode:          engine.Mode(cfg.Mode),
		BlockMessage:  cfg.BlockMessage,
		SteamRequired: cfg.SteamRequired,
		SteamMessage:  cfg.SteamMessage,
	}
}

func staticRules(cfg *config.Config) rules.StaticRules {
	return rules.StaticRules{
		IPs:      cfg.StaticIPs,
		Licenses: cfg.StaticLicenses,
		SteamIDs: cfg.StaticSteamIDs,
	}
}
