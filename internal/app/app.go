// Package app wires configuration into the concrete services used by
// the CLI commands.
package app

import (
	"context"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/hltv-tools/hltv-sync/internal/api"
	"github.com/hltv-tools/hltv-sync/internal/clock/system"
	"github.com/hltv-tools/hltv-sync/internal/config"
	"github.com/hltv-tools/hltv-sync/internal/extract"
	"github.com/hltv-tools/hltv-sync/internal/hltv"
	"github.com/hltv-tools/hltv-sync/internal/logging"
	"github.com/hltv-tools/hltv-sync/internal/progress"
	"github.com/hltv-tools/hltv-sync/internal/session"
	"github.com/hltv-tools/hltv-sync/internal/snapshot"
	"github.com/hltv-tools/hltv-sync/internal/store/postgres"
	syncengine "github.com/hltv-tools/hltv-sync/internal/sync"
)

// App bundles the long-lived services of one process.
type App struct {
	Cfg    config.Config
	Logger *zap.Logger

	Pool   *session.Pool
	Store  *postgres.Store
	Sink   hltv.BlobSink
	FSSink *snapshot.FSSink
	Hub    *progress.Hub
	Orch   *syncengine.Orchestrator
	Server *api.Server

	gcsClient *gcstorage.Client
}

// New loads config and assembles the full service graph.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Cfg: cfg, Logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	clk := system.New()

	pages := make(map[hltv.PageKind]session.PageSpec, len(a.Cfg.Pages))
	for name, pc := range a.Cfg.Pages {
		pages[hltv.PageKind(name)] = session.PageSpec{
			URLTemplate:   pc.URLTemplate,
			ReadySelector: pc.ReadySelector,
		}
	}

	var probe *session.Probe
	if a.Cfg.Session.ProbeEnabled {
		probe = session.NewProbe(a.Cfg.Session.UserAgent, a.Cfg.Session.ProbeTimeout())
	}

	pool, err := session.NewPool(session.Config{
		PoolSize:    a.Cfg.Session.PoolSize,
		UserAgent:   a.Cfg.Session.UserAgent,
		Headless:    a.Cfg.Session.Headless,
		NavTimeout:  a.Cfg.Session.NavTimeout(),
		MinNavDelay: a.Cfg.Session.MinNavDelay(),
		Pages:       pages,
	}, nil, probe, clk, logging.ForComponent(a.Logger, "session"))
	if err != nil {
		return fmt.Errorf("init session pool: %w", err)
	}
	a.Pool = pool

	store, err := postgres.NewStore(ctx, a.Cfg.DB)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	a.Store = store
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	if a.Cfg.Snapshot.Enabled {
		if err := a.buildSink(ctx); err != nil {
			return err
		}
	}

	a.Hub = progress.NewHub(progress.NewLogSink(logging.ForComponent(a.Logger, "progress")), progress.NewMetricsSink())

	orch, err := syncengine.NewOrchestrator(syncengine.Deps{
		Loader:      pool,
		Extractor:   extract.New(),
		Reconciler:  store,
		Checkpoints: store,
		Index:       store,
		Sink:        a.Sink,
		Clock:       clk,
		Retry: session.NewBackoffPolicy(
			a.Cfg.Retry.MaxAttempts,
			a.Cfg.Retry.BackoffInitial(),
			a.Cfg.Retry.BackoffMax(),
		),
		Emitter: a.Hub,
		Logger:  logging.ForComponent(a.Logger, "orchestrator"),
	}, syncengine.Config{
		EventWorkers:  a.Cfg.Sync.EventWorkers,
		TeamWorkers:   a.Cfg.Sync.TeamWorkers,
		PlayerWorkers: a.Cfg.Sync.PlayerWorkers,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	a.Orch = orch

	a.Server = api.NewServer(logging.ForComponent(a.Logger, "api"))
	return nil
}

// buildSink prefers GCS when a bucket is configured and falls back to
// the local filesystem directory.
func (a *App) buildSink(ctx context.Context) error {
	if a.Cfg.Snapshot.GCSBucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.gcsClient = client
		sink, err := snapshot.NewGCSSink(client, a.Cfg.Snapshot.GCSBucket)
		if err != nil {
			return err
		}
		a.Sink = sink
		return nil
	}

	sink, err := snapshot.NewFSSink(a.Cfg.Snapshot.Dir)
	if err != nil {
		return err
	}
	a.FSSink = sink
	a.Sink = sink
	return nil
}

// Close tears down every service that was built.
func (a *App) Close(ctx context.Context) {
	if a.Hub != nil {
		if err := a.Hub.Close(ctx); err != nil {
			a.Logger.Warn("close progress hub", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("close gcs client", zap.Error(err))
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
