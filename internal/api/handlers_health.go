// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/parley/internal/logging"
)

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status     string            `json:"status"`
	Uptime     float64           `json:"uptime_seconds"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthLive reports that the process is serving requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(HealthStatus{
		Status: "healthy",
		Uptime: time.Since(h.startTime).Seconds(),
	})
}

// HealthReady runs every registered check and answers 503 when any fails.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := HealthStatus{
		Status:     "healthy",
		Uptime:     time.Since(h.startTime).Seconds(),
		Components: make(map[string]string, len(names)),
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("component", name).Msg("Readiness check failed")
			status.Status = "degraded"
			status.Components[name] = "unavailable"
			continue
		}
		status.Components[name] = "ok"
	}

	rw := NewResponseWriter(w, r)
	if status.Status != "healthy" {
		rw.ServiceUnavailable("one or more dependencies are unavailable", status)
		return
	}
	rw.Success(status)
}
