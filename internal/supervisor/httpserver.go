// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/arkonor/fleetglass/internal/logging"
)

// HTTPServer is the suture service wrapping the HTTP listener.
type HTTPServer struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPServer builds a supervised HTTP server for the given handler.
func NewHTTPServer(addr string, handler http.Handler, readTimeout, shutdownTimeout time.Duration) *HTTPServer {
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       readTimeout,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Serve runs the listener until ctx is canceled, then shuts down gracefully.
// Websocket connections are hijacked and therefore survive Shutdown's drain;
// they end when the hub closes their clients.
func (s *HTTPServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	logging.Info().Str("addr", s.server.Addr).Msg("http server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("http server shutdown incomplete")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// String names the service in supervisor logs.
func (s *HTTPServer) String() string {
	return "http-server"
}
