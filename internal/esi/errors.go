// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package esi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the gateway error taxonomy. Callers branch with
// errors.Is; the poller maps ErrNotFound on the roster fetch to its
// fleet-gone handling.
var (
	// ErrAuth means the bearer token was rejected (401). Not retried; the
	// owning commander must re-authenticate.
	ErrAuth = errors.New("esi: authentication failed")

	// ErrScope means the token lacks a required scope (403). Not retried.
	ErrScope = errors.New("esi: missing scope")

	// ErrNotFound is a 404. For fleet endpoints it means the fleet has
	// closed, not that everyone left.
	ErrNotFound = errors.New("esi: not found")

	// ErrServer is a 5xx that survived all retries. A cooldown entry is
	// written so other pollers back off too.
	ErrServer = errors.New("esi: upstream server error")

	// ErrTransport is a network-level failure after retries. Treated like
	// ErrServer for backoff purposes.
	ErrTransport = errors.New("esi: transport failure")
)

// StatusError carries the HTTP status and endpoint for an upstream failure.
type StatusError struct {
	Status   int
	Endpoint string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("esi: %s returned status %d", e.Endpoint, e.Status)
}

// Unwrap maps the status onto the sentinel taxonomy.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrAuth
	case e.Status == http.StatusForbidden:
		return ErrScope
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status >= 500:
		return ErrServer
	default:
		return nil
	}
}
