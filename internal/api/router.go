// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkonor/fleetglass/internal/activity"
	"github.com/arkonor/fleetglass/internal/bus"
	"github.com/arkonor/fleetglass/internal/catalog"
	"github.com/arkonor/fleetglass/internal/config"
	"github.com/arkonor/fleetglass/internal/poller"
	"github.com/arkonor/fleetglass/internal/reconcile"
	"github.com/arkonor/fleetglass/internal/sessions"
	"github.com/arkonor/fleetglass/internal/snapshot"
	"github.com/arkonor/fleetglass/internal/websocket"
)

// ActivityLog is the activity store surface the API needs: the event log
// plus the pilot registry and waitlist writes.
type ActivityLog interface {
	activity.Store
	UpsertCharacter(ctx context.Context, characterID int64, name string) error
	AddPending(ctx context.Context, fleetID, characterID int64) error
}

// Router wires the HTTP surface to the engine components.
type Router struct {
	cfg      *config.Config
	verifier *TokenVerifier
	validate *validator.Validate

	gateway    poller.Gateway
	hub        *websocket.Hub
	snapshots  *snapshot.Store
	engine     *reconcile.Engine
	accountant *sessions.Accountant
	stats      sessions.Store
	log        ActivityLog
	catalog    *catalog.Catalog
	broadcast  *bus.Broadcaster
}

// NewRouter builds the router over its collaborators.
func NewRouter(
	cfg *config.Config,
	gateway poller.Gateway,
	hub *websocket.Hub,
	snapshots *snapshot.Store,
	engine *reconcile.Engine,
	accountant *sessions.Accountant,
	stats sessions.Store,
	log ActivityLog,
	cat *catalog.Catalog,
	broadcast *bus.Broadcaster,
) *Router {
	return &Router{
		cfg:        cfg,
		verifier:   NewTokenVerifier(cfg.Security.ViewerTokenSecret),
		validate:   validator.New(),
		gateway:    gateway,
		hub:        hub,
		snapshots:  snapshots,
		engine:     engine,
		accountant: accountant,
		stats:      stats,
		log:        log,
		catalog:    cat,
		broadcast:  broadcast,
	}
}

// Routes assembles the chi mux.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(SecurityHeaders())
	r.Use(CORS(rt.cfg.Security))

	r.Get("/healthz", Instrument("/healthz", rt.handleHealth))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimit(rt.cfg.Security))

		r.Get("/fleet/{fleetID}/ws", rt.handleViewerSocket)
		r.Get("/fleet/{fleetID}/history", Instrument("/api/fleet/history", rt.handleHistory))
		r.Post("/fleet/{fleetID}/waitlist/{characterID}", Instrument("/api/fleet/waitlist", rt.handleWaitlistPending))

		r.Post("/characters", Instrument("/api/characters", rt.handleRegisterCharacter))
		r.Get("/characters/{characterID}/stats", Instrument("/api/characters/stats", rt.handleCharacterStats))

		r.Post("/admin/rebuild", Instrument("/api/admin/rebuild", rt.handleRebuild))
	})

	return r
}
