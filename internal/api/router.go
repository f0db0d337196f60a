// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/parley/internal/apperrors"
	"github.com/tomtom215/parley/internal/middleware"
)

// DefaultGatewayPath is where the WebSocket gateway is mounted when no path
// is configured.
const DefaultGatewayPath = "/chat"

// Router assembles the HTTP surface: REST API, metrics and the /chat upgrade.
type Router struct {
	handler      *Handler
	authenticate func(http.Handler) http.Handler
	chiMW        *ChiMiddleware
	gateway      http.Handler
	gatewayPath  string
}

// NewRouter creates a router. authenticate guards every user endpoint;
// gateway may be nil when the node serves only the REST API.
func NewRouter(handler *Handler, authenticate func(http.Handler) http.Handler, chiMW *ChiMiddleware, gateway http.Handler, gatewayPath string) *Router {
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	if authenticate == nil {
		authenticate = unauthenticated
	}
	if gatewayPath == "" {
		gatewayPath = DefaultGatewayPath
	}
	return &Router{
		handler:      handler,
		authenticate: authenticate,
		chiMW:        chiMW,
		gateway:      gateway,
		gatewayPath:  gatewayPath,
	}
}

// Setup builds the chi mux.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.AccessLog)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	// The gateway authenticates and checks origins itself before upgrading.
	if router.gateway != nil {
		r.With(router.chiMW.RateLimit()).Handle(router.gatewayPath, router.gateway)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMW.CORS())
		r.Use(APISecurityHeaders())

		r.Route("/health", func(r chi.Router) {
			r.Get("/live", router.handler.HealthLive)
			r.Get("/ready", router.handler.HealthReady)
		})

		r.Group(func(r chi.Router) {
			r.Use(router.chiMW.RateLimit())
			r.Use(router.authenticate)

			r.Get("/chats/{chatID}/messages", router.handler.ChatMessages)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", router.handler.ListNotifications)
				r.Get("/preferences", router.handler.GetPreferences)
				r.Patch("/preferences", router.handler.UpdatePreferences)
				r.Post("/{id}/read", router.handler.MarkNotificationRead)
			})
		})
	})

	return r
}

// unauthenticated is used when no authenticator is wired, so user routes
// fail closed.
func unauthenticated(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusUnauthorized, apperrors.CodeUnauthorized, "authentication required")
	})
}
