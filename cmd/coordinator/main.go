// Package main provides the entry point for the gpumesh coordinator.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gridforge/gpumesh/internal/api"
	"github.com/gridforge/gpumesh/internal/auth"
	"github.com/gridforge/gpumesh/internal/chain"
	"github.com/gridforge/gpumesh/internal/engine"
	"github.com/gridforge/gpumesh/internal/shutdown"
	"github.com/gridforge/gpumesh/internal/statsfeed"
	"github.com/gridforge/gpumesh/internal/store"
	pgstore "github.com/gridforge/gpumesh/internal/store/postgres"
	"github.com/gridforge/gpumesh/pkg/config"
	"github.com/gridforge/gpumesh/pkg/logger"
)

func main() {
	log := logger.New(slog.LevelInfo, true)

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)

	// Postgres bookkeeping is optional; without a DSN the coordinator runs
	// purely in memory.
	var st store.Store
	if cfg.DatabaseDSN != "" {
		pg, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseDSN), log.Logger)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Error("failed to ensure database schema", "error", err)
			os.Exit(1)
		}
		st = pg
		coordinator.Register(shutdown.NewCloserComponent("store", pg))
	} else {
		log.Warn("no database configured, running without persistence")
	}

	var chainClient engine.ChainClient = chain.Nop{}
	if cfg.Chain.Endpoint != "" {
		chainClient = chain.NewClient(cfg.Chain, log.Logger)
	} else {
		log.Warn("no chain endpoint configured, on-chain calls disabled")
	}

	hub := statsfeed.NewHub(log.Logger)
	var sink engine.StatsSink = hub
	if st != nil {
		sink = statsfeed.MultiSink{hub, statsfeed.NewStoreSink(st.Stats(), log.Logger)}
	}

	eng := engine.New(cfg.Network, chainClient, sink, log.Logger)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.Start(rootCtx)
	coordinator.Register(shutdown.NewStopperComponent("engine", eng))

	// Relay task change notifications from Postgres to websocket subscribers.
	if cfg.DatabaseDSN != "" {
		listener := pgstore.NewTaskListener(cfg.DatabaseDSN, log.Logger)
		go func() {
			if err := listener.Listen(rootCtx, func(ev pgstore.TaskEvent) {
				hub.PublishTaskEvent(ev.TaskID, ev.Event)
			}); err != nil && rootCtx.Err() == nil {
				log.Error("task listener stopped", "error", err)
			}
		}()
	}

	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}, log.Logger)

	server := api.NewServer(cfg, eng, st, hub, authService, log.Logger)

	serverCtx, serverCancel := context.WithCancel(rootCtx)
	serverDone := make(chan struct{})
	coordinator.Register(shutdown.NewFuncComponent("api-server", func(ctx context.Context) error {
		serverCancel()
		select {
		case <-serverDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))

	go coordinator.WaitForSignal()

	log.Info("starting coordinator",
		"host", cfg.APIHost,
		"port", cfg.APIPort,
	)

	if err := server.Start(serverCtx); err != nil {
		log.Error("server error", "error", err)
		close(serverDone)
		coordinator.Shutdown()
		coordinator.Wait()
		os.Exit(1)
	}
	close(serverDone)

	coordinator.Shutdown()
	coordinator.Wait()
	log.Info("coordinator stopped", "exit_code", coordinator.ExitCode())
	os.Exit(coordinator.ExitCode())
}
