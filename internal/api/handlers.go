// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/arkonor/fleetglass/internal/bus"
	"github.com/arkonor/fleetglass/internal/esi"
	"github.com/arkonor/fleetglass/internal/logging"
	"github.com/arkonor/fleetglass/internal/poller"
	"github.com/arkonor/fleetglass/internal/websocket"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the CORS middleware and the viewer
	// token; the upgrader itself accepts any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleViewerSocket authenticates a viewer, upgrades the connection, and
// runs a poll orchestrator for exactly as long as the connection lives. Each
// viewer gets their own poller; the snapshot store arbitrates between
// concurrent pollers of the same fleet.
func (rt *Router) handleViewerSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := rt.verifier.Verify(bearerToken(r))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid or missing viewer token")
		return
	}

	fleetID, err := strconv.ParseInt(chi.URLParam(r, "fleetID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid fleet id")
		return
	}
	if claims.FleetID != 0 && claims.FleetID != fleetID {
		respondError(w, http.StatusForbidden, "token not valid for this fleet")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	topics := []string{bus.FleetTopic(fleetID), bus.UserTopic(claims.AccountID)}
	client := websocket.NewClient(rt.hub, conn, topics)
	rt.hub.Register <- client
	client.Start()

	cred := esi.StaticCredential{
		Character: claims.CharacterID,
		Account:   claims.AccountID,
		Bearer:    claims.ESIToken,
	}
	p := poller.New(
		rt.cfg.Poller, rt.gateway, cred, fleetID,
		rt.snapshots, rt.engine, rt.accountant, rt.log, rt.catalog, rt.broadcast,
	)
	// Keep the viewer's fleet topic in step with the tracked fleet: a path
	// fleet id of 0 means auto-discovery, and a fleet-gone reset re-probes,
	// so frames may move to a fleet topic the client never named.
	p.OnFleetChange(func(oldID, newID int64) {
		rt.hub.Retopic(client, bus.FleetTopic(oldID), bus.FleetTopic(newID))
	})

	// The request context dies when this handler returns, so the poller gets
	// its own context tied to the connection instead.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-client.Done()
		cancel()
	}()
	go func() {
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Int64("fleet_id", fleetID).Msg("poller exited")
		}
	}()
}

// bearerToken extracts the viewer token from the Authorization header or,
// for browser websocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

func (rt *Router) handleHistory(w http.ResponseWriter, r *http.Request) {
	fleetID, err := strconv.ParseInt(chi.URLParam(r, "fleetID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid fleet id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := rt.log.History(r.Context(), fleetID, limit, offset)
	if err != nil {
		logging.Error().Err(err).Int64("fleet_id", fleetID).Msg("history query failed")
		respondError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"fleet_id": fleetID,
		"entries":  entries,
	})
}

// characterStatsResponse is the session time summary for one pilot.
type characterStatsResponse struct {
	CharacterID  int64            `json:"character_id"`
	TotalSeconds int64            `json:"total_seconds"`
	HullSeconds  map[string]int64 `json:"hull_seconds"`
	Active       bool             `json:"active"`
	ActiveHull   string           `json:"active_hull,omitempty"`
	ActiveStart  *time.Time       `json:"active_start,omitempty"`
}

func (rt *Router) handleCharacterStats(w http.ResponseWriter, r *http.Request) {
	characterID, err := strconv.ParseInt(chi.URLParam(r, "characterID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid character id")
		return
	}

	stats, err := rt.stats.Get(r.Context(), characterID)
	if err != nil {
		logging.Error().Err(err).Int64("character_id", characterID).Msg("stats query failed")
		respondError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	if stats == nil {
		respondError(w, http.StatusNotFound, "no recorded activity for character")
		return
	}

	respondJSON(w, http.StatusOK, characterStatsResponse{
		CharacterID:  stats.CharacterID,
		TotalSeconds: stats.TotalSeconds,
		HullSeconds:  stats.HullSeconds,
		Active:       stats.Active(),
		ActiveHull:   stats.ActiveHull,
		ActiveStart:  stats.ActiveStart,
	})
}

// registerCharacterRequest registers a pilot name so reconciliation events
// can carry it. Normally posted by the waitlist frontend on signup.
type registerCharacterRequest struct {
	CharacterID int64  `json:"character_id" validate:"required,gt=0"`
	Name        string `json:"name" validate:"required,min=1,max=64"`
}

func (rt *Router) handleRegisterCharacter(w http.ResponseWriter, r *http.Request) {
	var req registerCharacterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := rt.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "character_id and name are required")
		return
	}

	if err := rt.log.UpsertCharacter(r.Context(), req.CharacterID, req.Name); err != nil {
		logging.Error().Err(err).Int64("character_id", req.CharacterID).Msg("character upsert failed")
		respondError(w, http.StatusInternalServerError, "character registration failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"character_id": req.CharacterID})
}

// handleWaitlistPending marks a pilot as approved-and-invited so their next
// observed join is attributed to the waitlist.
func (rt *Router) handleWaitlistPending(w http.ResponseWriter, r *http.Request) {
	fleetID, err := strconv.ParseInt(chi.URLParam(r, "fleetID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid fleet id")
		return
	}
	characterID, err := strconv.ParseInt(chi.URLParam(r, "characterID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid character id")
		return
	}

	if err := rt.log.AddPending(r.Context(), fleetID, characterID); err != nil {
		logging.Error().Err(err).
			Int64("fleet_id", fleetID).
			Int64("character_id", characterID).
			Msg("waitlist pending insert failed")
		respondError(w, http.StatusInternalServerError, "waitlist update failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"fleet_id":     fleetID,
		"character_id": characterID,
	})
}

// handleRebuild replays the full activity log through the session state
// machine, replacing all stored stats. Used after schema fixes or suspected
// accounting drift.
func (rt *Router) handleRebuild(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := rt.accountant.Rebuild(r.Context(), rt.log); err != nil {
		logging.Error().Err(err).Msg("session stats rebuild failed")
		respondError(w, http.StatusInternalServerError, "rebuild failed")
		return
	}
	logging.Info().Dur("duration", time.Since(start)).Msg("session stats rebuilt from activity log")
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
