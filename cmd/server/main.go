// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Command server runs the fleet mirror: the ESI gateway, the reconciliation
// engine, the session accountant, and the viewer-facing HTTP/websocket
// surface, all under one supervision tree.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/arkonor/fleetglass/internal/activity"
	"github.com/arkonor/fleetglass/internal/api"
	"github.com/arkonor/fleetglass/internal/bus"
	"github.com/arkonor/fleetglass/internal/cache"
	"github.com/arkonor/fleetglass/internal/catalog"
	"github.com/arkonor/fleetglass/internal/config"
	"github.com/arkonor/fleetglass/internal/esi"
	"github.com/arkonor/fleetglass/internal/logging"
	"github.com/arkonor/fleetglass/internal/reconcile"
	"github.com/arkonor/fleetglass/internal/sessions"
	"github.com/arkonor/fleetglass/internal/snapshot"
	"github.com/arkonor/fleetglass/internal/supervisor"
	"github.com/arkonor/fleetglass/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("Starting Fleetglass")

	db, err := sql.Open("duckdb", cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open database")
	}
	defer db.Close()

	activityStore := activity.NewDuckDBStore(db)
	if err := activityStore.CreateTables(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create activity tables")
	}
	statsStore := sessions.NewDuckDBStore(db)
	if err := statsStore.CreateTables(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create session tables")
	}

	cacheStore, err := cache.Open(cfg.Cache)
	if err != nil {
		logging.Fatal().Err(err).Str("backend", cfg.Cache.Backend).Msg("Failed to open cache store")
	}
	defer func() {
		if err := cacheStore.Close(); err != nil {
			logging.Warn().Err(err).Msg("Cache store close failed")
		}
	}()

	shipCatalog, err := catalog.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load ship catalog")
	}
	logging.Info().Int("hulls", shipCatalog.Len()).Msg("Ship catalog loaded")

	messageBus := bus.NewGoChannel()
	defer func() {
		if err := messageBus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Message bus close failed")
		}
	}()
	broadcaster := bus.NewBroadcaster(messageBus)

	gateway := esi.New(cfg.ESI, cacheStore, broadcaster)
	snapshots := snapshot.NewStore(cacheStore, cfg.Cache.SnapshotTTL)
	engine := reconcile.NewEngine(shipCatalog, activityStore, activityStore, nil)
	accountant := sessions.NewAccountant(statsStore, cfg.Sessions)

	hub := websocket.NewHub(messageBus)

	router := api.NewRouter(
		cfg, gateway, hub, snapshots, engine, accountant,
		statsStore, activityStore, shipCatalog, broadcaster,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// sutureslog wants an slog.Logger; bridge it onto zerolog.
	slogLogger := slog.New(logging.NewSlogHandler())
	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())
	tree.AddMessagingService(hub)
	tree.AddAPIService(supervisor.NewHTTPServer(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		router.Routes(),
		cfg.Server.Timeout,
		0,
	))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	if err := <-errCh; err != nil && err != context.Canceled {
		logging.Error().Err(err).Msg("Supervisor exited with error")
		os.Exit(1)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", fmt.Sprint(svc.Service)).Msg("Service did not stop in time")
		}
	}

	logging.Info().Msg("Fleetglass stopped")
}
