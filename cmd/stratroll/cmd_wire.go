package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stratops/stratroll/internal/artifacts"
	"github.com/stratops/stratroll/internal/config"
	"github.com/stratops/stratroll/internal/mirror"
	"github.com/stratops/stratroll/internal/notify"
	"github.com/stratops/stratroll/internal/persistence/filestore"
	"github.com/stratops/stratroll/internal/persistence/postgres"
	"github.com/stratops/stratroll/internal/rollout"
	"github.com/stratops/stratroll/internal/telemetry"
)

// appRuntime bundles the wired collaborators behind a single teardown.
// Every command builds one, runs its operation, and closes it.
type appRuntime struct {
	cfg     *config.AppConfig
	policy  *config.Policy
	manager *rollout.Manager
	metrics *telemetry.Metrics

	closers []func() error
}

// newRuntime loads configuration and wires the manager. The registerer
// is nil for one-shot commands; serve passes a real registry. signals
// is the websocket hub when serving, nil otherwise.
func newRuntime(cmd *cobra.Command, reg prometheus.Registerer, signals rollout.SignalSink) (*appRuntime, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAppConfig(configPath)
	if err != nil {
		return nil, err
	}
	applyLogLevel(cfg.LogLevel)
	if logLevel != "" {
		applyLogLevel(string(logLevel))
	}

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}

	rt := &appRuntime{cfg: cfg, policy: policy}

	store, err := rt.buildStore(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}

	artifactStore, err := artifacts.NewStore(cfg.ArtifactsDir)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	deps := rollout.Deps{
		Store:     store,
		Artifacts: artifactStore,
		Policy:    policy,
		Signals:   signals,
	}

	if cfg.Mirror.Enabled {
		mir, err := mirror.New(cfg.Mirror)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect status mirror: %w", err)
		}
		rt.closers = append(rt.closers, mir.Close)
		deps.Mirror = mir
	}

	if cfg.Notify.Enabled {
		n := notify.New(cfg.Notify)
		rt.closers = append(rt.closers, n.Close)
		deps.Notifier = n
	}

	rt.metrics = telemetry.NewMetrics(reg)
	deps.Metrics = rt.metrics

	mgr, err := rollout.NewManager(deps)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.manager = mgr
	return rt, nil
}

func (rt *appRuntime) buildStore(cfg *config.AppConfig) (rollout.Store, error) {
	if cfg.Database.Enabled {
		db, err := postgres.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)

		store := postgres.NewStore(db, cfg.Database.QueryTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure rollout schema: %w", err)
		}
		log.Debug().Msg("using postgres rollout store")
		return store, nil
	}

	store, err := filestore.NewStore(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}
	log.Debug().Str("dir", cfg.StateDir).Msg("using file rollout store")
	return store, nil
}

// Close releases resources in reverse wiring order.
func (rt *appRuntime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			log.Warn().Err(err).Msg("teardown error")
		}
	}
}

func applyLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func actorFrom(cmd *cobra.Command) string {
	actor, _ := cmd.Flags().GetString("actor")
	if actor == "" {
		return "operator"
	}
	return actor
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
