// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"context"
	"net/http"
	"time"
)

// readyPingTimeout bounds the database check of the readiness probe.
const readyPingTimeout = 2 * time.Second

// LiveResponse is the body of the liveness probe.
type LiveResponse struct {
	Alive         bool    `json:"alive"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// ReadyResponse is the body of the readiness probe.
type ReadyResponse struct {
	Ready     bool   `json:"ready"`
	Engine    bool   `json:"engine"`
	Database  bool   `json:"database"`
	Scheduler bool   `json:"scheduler"`
	Error     string `json:"error,omitempty"`
}

// HealthLive handles liveness probe requests.
// Returns 200 OK if the process is alive, regardless of dependencies.
//
// @Summary Liveness probe
// @Tags Core
// @Produce json
// @Success 200 {object} APIResponse{data=LiveResponse}
// @Router /health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(LiveResponse{
		Alive:         true,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests.
// Returns 200 only when the engine is wired, the database answers and the
// scheduler runs.
//
// @Summary Readiness probe
// @Tags Core
// @Produce json
// @Success 200 {object} APIResponse{data=ReadyResponse}
// @Failure 503 {object} APIResponse{data=ReadyResponse}
// @Router /health/ready [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Engine: h.deps.ready()}
	if resp.Engine {
		resp.Scheduler = h.deps.Scheduler.Running()
		if h.deps.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyPingTimeout)
			err := h.deps.DB.Ping(ctx)
			cancel()
			resp.Database = err == nil
			if err != nil {
				resp.Error = err.Error()
			}
		}
	}
	resp.Ready = resp.Engine && resp.Database && resp.Scheduler

	rw := NewResponseWriter(w, r)
	if !resp.Ready {
		rw.writeJSON(http.StatusServiceUnavailable, APIResponse{Success: false, Data: resp, Meta: rw.meta(nil)})
		return
	}
	rw.Success(resp)
}
