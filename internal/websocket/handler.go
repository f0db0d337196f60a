// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/directory"
	"github.com/tomtom215/parley/internal/logging"
)

// Authenticator resolves the user of an upgrade request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*directory.User, error)
}

// Handler upgrades authenticated /chat requests.
type Handler struct {
	gateway  *Gateway
	auth     Authenticator
	onError  auth.ErrorWriter
	upgrader websocket.Upgrader
}

// NewHandler creates the /chat endpoint. Requests from origins outside
// allowedOrigins are refused unless it contains "*". onError renders
// authentication failures; nil falls back to plain text.
func NewHandler(gateway *Gateway, authenticator Authenticator, allowedOrigins []string, onError auth.ErrorWriter) *Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, status int, _ error) {
			http.Error(w, http.StatusText(status), status)
		}
	}
	return &Handler{
		gateway: gateway,
		auth:    authenticator,
		onError: onError,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin.
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP authenticates before upgrading, then runs the connection until
// it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Authenticate(r.Context(), r)
	if err != nil {
		status := http.StatusUnauthorized
		if !auth.IsAuthError(err) {
			status = http.StatusServiceUnavailable
			logging.Ctx(r.Context()).Error().Err(err).Msg("Gateway authentication lookup failed")
		}
		h.onError(w, r, status, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the response.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	cfg := h.gateway.cfg
	var limiter *rate.Limiter
	if cfg.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EventsPerSecond), cfg.EventBurst)
	}
	client := NewClient(conn, user, cfg.SendBuffer, limiter)

	ctx := logging.ContextWithConnectionID(r.Context(), client.ConnectionID())
	ctx = logging.ContextWithLogger(ctx, logging.LoggerFromContext(ctx).With().Str("user_id", user.ID).Logger())

	h.gateway.connect(ctx, client)
	go client.writePump()
	client.readPump(cfg.MaxMessageSize, func(raw []byte) {
		h.gateway.dispatch(ctx, client, raw)
	})
	h.gateway.disconnect(ctx, client)
}
