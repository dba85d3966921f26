// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/cerberus/pkg/admission"
	"github.com/kadirpekel/cerberus/pkg/behavior"
	"github.com/kadirpekel/cerberus/pkg/breaker"
	"github.com/kadirpekel/cerberus/pkg/config"
	"github.com/kadirpekel/cerberus/pkg/config/provider"
	"github.com/kadirpekel/cerberus/pkg/observability"
	"github.com/kadirpekel/cerberus/pkg/policy"
	"github.com/kadirpekel/cerberus/pkg/ratelimit"
	"github.com/kadirpekel/cerberus/pkg/server"
)

// ServeCmd starts the admission server.
type ServeCmd struct {
	// Zero-config options
	Store     string `help:"Counter store backend (memory, redis)." placeholder:"BACKEND"`
	RedisAddr string `name:"redis-addr" help:"Redis address (host:port). Implies --store redis." placeholder:"ADDR"`

	// Server options
	Port  int  `help:"Port to listen on." default:"8080"`
	Watch bool `help:"Watch config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	if cli.Config != "" && (c.Store != "" || c.RedisAddr != "") {
		return fmt.Errorf("cannot combine --config with zero-config flags (--store, --redis-addr)")
	}

	// The reload hook is wired to the server after it exists; the loader only
	// needs the closure. Assignment happens before Watch starts, so the watch
	// goroutine observes it.
	var onReload func(*config.Config)
	cfg, loader, err := c.loadConfig(ctx, cli.Config, func(updated *config.Config) {
		if onReload != nil {
			onReload(updated)
		}
	})
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	// Override port if explicitly specified
	if c.Port != 0 && c.Port != 8080 {
		cfg.Server.Port = c.Port
	}

	// Apply the config file's logging section unless CLI/env already won
	logCleanup, err := applyConfigLogging(cli, cfg.Logging)
	if err != nil {
		return err
	}
	if logCleanup != nil {
		defer logCleanup()
	}

	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			slog.Warn("Observability shutdown error", "error", err)
		}
	}()
	metrics := obs.GetMetrics()

	// Shared SQLite/Postgres pool so the profile store and anything else
	// using the databases section reuse one connection pool.
	dbPool := config.NewDBPool()
	defer func() { _ = dbPool.Close() }()

	store, err := ratelimit.NewCounterStoreFromConfig(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to create counter store: %w", err)
	}
	defer func() { _ = store.Close() }()

	executor, err := ratelimit.NewExecutor(store)
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	pstore, err := behavior.NewProfileStoreFromConfig(cfg, dbPool)
	if err != nil {
		return fmt.Errorf("failed to create profile store: %w", err)
	}
	defer func() { _ = pstore.Close() }()
	scorer := behavior.NewScorer(pstore, behavior.ScoreParamsFromConfig(cfg.Behavior))

	compositor, err := policy.NewCompositorFromConfig(cfg.Policy, scorer, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to build policy compositor: %w", err)
	}

	brk := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.Timeout,
	}, breaker.WithStateChange(func(from, to breaker.State) {
		slog.Warn("Store breaker state changed", "from", from, "to", to)
		metrics.RecordBreakerTransition(context.Background(), string(from), string(to))
	}))

	backoff := ratelimit.NewBackoffCalculator(executor.Streaks(), cfg.Backoff.Base.Milliseconds())

	ctrl, err := admission.NewController(executor,
		admission.WithCompositor(compositor),
		admission.WithBreaker(brk),
		admission.WithBackoff(backoff),
		admission.WithScorer(scorer),
		admission.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create admission controller: %w", err)
	}

	srv := server.NewHTTPServer(cfg, ctrl, server.WithObservability(obs))
	onReload = srv.UpdateConfig

	// Start config watching if enabled
	if c.Watch && loader != nil {
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	// Print startup info
	greenColor := "\033[38;2;16;185;129m"
	resetColor := "\033[0m"
	fmt.Printf("\n%s🚀 Cerberus admission server ready!%s\n", greenColor, resetColor)
	fmt.Printf("   Check:       http://%s/v1/check\n", srv.Address())
	fmt.Printf("   Outcome:     http://%s/v1/outcome\n", srv.Address())
	fmt.Printf("   Health:      http://%s/health\n", srv.Address())
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:     http://%s%s\n", srv.Address(), cfg.Observability.Metrics.Endpoint)
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Printf("   Tracing:     otlp (%s)\n", cfg.Observability.Tracing.Endpoint)
	}
	fmt.Printf("   Store:       %s\n", cfg.Store.Backend)
	fmt.Printf("   Behavior:    %s\n", cfg.Behavior.Backend)
	fmt.Println("\nPress Ctrl+C to stop")

	// Start server (blocks until context is cancelled)
	return srv.Start(ctx)
}

// loadConfig loads configuration from file or creates zero-config.
func (c *ServeCmd) loadConfig(ctx context.Context, configPath string, onChange func(*config.Config)) (*config.Config, *config.Loader, error) {
	if configPath != "" {
		_ = config.LoadEnvFilesFor(configPath)
		p, err := provider.NewFileProvider(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open config: %w", err)
		}
		loader := config.NewLoader(p, config.WithOnChange(onChange))
		cfg, err := loader.Load(ctx)
		if err != nil {
			_ = loader.Close()
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		slog.Info("Loaded configuration", "path", configPath)
		return cfg, loader, nil
	}

	// Zero-config mode
	cfg := &config.Config{}
	if c.RedisAddr != "" || c.Store == string(config.StoreBackendRedis) {
		cfg.Store = &config.StoreConfig{Backend: config.StoreBackendRedis}
		if c.RedisAddr != "" {
			cfg.Store.Redis = &config.RedisConfig{Addr: c.RedisAddr}
		}
	} else if c.Store != "" {
		cfg.Store = &config.StoreConfig{Backend: config.StoreBackend(c.Store)}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	slog.Info("Using zero-config mode", "store", cfg.Store.Backend)
	return cfg, nil, nil
}
