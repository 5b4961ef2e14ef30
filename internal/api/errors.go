// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/arkonor/fleetglass/internal/logging"
)

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: msg}); err != nil {
		logging.Error().Err(err).Msg("failed to encode error response")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}
