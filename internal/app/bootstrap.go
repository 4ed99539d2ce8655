// Package app is the composition root. Bootstrap only wires dependencies; the
// behavior lives in the packages it assembles.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"regportal.io/automation/internal/api/handlers"
	"regportal.io/automation/internal/api/middleware"
	"regportal.io/automation/internal/automation"
	"regportal.io/automation/internal/config"
	"regportal.io/automation/internal/domain"
	"regportal.io/automation/internal/governance/audit"
	"regportal.io/automation/internal/pkg/crypto"
	"regportal.io/automation/internal/pkg/logger"
	"regportal.io/automation/internal/pkg/metrics"
	"regportal.io/automation/internal/pkg/worker"
	"regportal.io/automation/internal/portal"
	"regportal.io/automation/internal/vault"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	Vault   *vault.Vault
	Engine  *automation.Engine
	Bus     *domain.EventBus
	Pools   *worker.Pools
	Metrics *metrics.Recorder
	Driver  portal.Driver
	Audit   *audit.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	recorder := metrics.NewRecorder()

	v, err := newVault(cfg.Vault, recorder)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		PortalPoolSize:  cfg.Worker.PortalPoolSize,
		DrainTimeout:    cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	// Browser automation is provided by an external runner; in-process runs
	// use the simulated portals.
	driver := portal.NewSimulatedDriver()
	executors, err := newExecutors(cfg, driver)
	if err != nil {
		pools.Shutdown()
		return nil, err
	}

	bus := domain.NewEventBus()
	engine, err := automation.New(executors, v, bus,
		automation.WithConfig(automation.Config{
			TickInterval:      cfg.Automation.TickInterval,
			DefaultMaxRetries: cfg.Automation.DefaultMaxRetries,
			DefaultTimeout:    cfg.Automation.DefaultTimeout,
			SessionRetention:  cfg.Automation.SessionRetention,
		}),
		automation.WithPool(pools.Portal),
		automation.WithMetrics(recorder),
	)
	if err != nil {
		pools.Shutdown()
		return nil, fmt.Errorf("init automation engine: %w", err)
	}

	trail := audit.NewLogger(audit.DefaultCapacity)
	server := handlers.NewServer(handlers.ServerDeps{
		Vault:                 v,
		Engine:                engine,
		Pools:                 pools,
		Audit:                 trail,
		RotationThresholdDays: cfg.Vault.RotationThresholdDays,
	})
	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
	}

	logger.Info("Application bootstrapped",
		zap.Strings("portals", cfg.EnabledPortals()),
		zap.Int("credentials", v.Len()),
		zap.Bool("snapshot", cfg.Vault.SnapshotPath != ""),
	)

	return &Application{
		Config:  cfg,
		Router:  newRouter(server, jwtCfg, recorder),
		Vault:   v,
		Engine:  engine,
		Bus:     bus,
		Pools:   pools,
		Metrics: recorder,
		Driver:  driver,
		Audit:   trail,
		stopCh:  make(chan struct{}),
	}, nil
}

func newVault(cfg config.VaultConfig, recorder *metrics.Recorder) (*vault.Vault, error) {
	cipher, err := crypto.NewCipher(crypto.WithIterations(cfg.KDFIterations))
	if err != nil {
		return nil, err
	}

	var keys vault.KeyProvider = vault.StaticKey(cfg.Passphrase)
	if cfg.PassphraseFile != "" {
		keys = vault.FileKey{Path: cfg.PassphraseFile}
	}

	opts := []vault.Option{vault.WithOpsRecorder(recorder)}
	if cfg.SnapshotPath != "" {
		p, err := vault.NewFilePersister(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, vault.WithPersister(p))
	}
	return vault.New(cipher, keys, opts...)
}

func newExecutors(cfg *config.Config, driver portal.Driver) ([]automation.Executor, error) {
	names := cfg.EnabledPortals()
	executors := make([]automation.Executor, 0, len(names))
	for _, name := range names {
		system, ok := domain.ParseSystem(name)
		if !ok {
			return nil, fmt.Errorf("portal %q: unknown system", name)
		}
		ex, err := portal.New(system, cfg.Portals[name].BaseURL, driver)
		if err != nil {
			return nil, fmt.Errorf("portal %q: %w", name, err)
		}
		executors = append(executors, ex)
	}
	return executors, nil
}
