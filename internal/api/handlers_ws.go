// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/fieldsync/internal/logging"
	ws "github.com/tomtom215/fieldsync/internal/websocket"
)

// maxLoggedOrigin bounds origin values written to logs.
const maxLoggedOrigin = 200

// WebSocket upgrades the connection and subscribes it to the caller's
// tenant events.
//
// @Summary Real-time event stream
// @Description Upgrades to a websocket that receives sync.*, category.* and job.* events of the caller's tenant. Browsers pass the token as access_token.
// @Tags Realtime
// @Success 101 "Switching protocols"
// @Failure 503 {object} APIResponse
// @Security BearerAuth
// @Router /ws [get]
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps == nil || h.deps.Hub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("event stream is not available")
		return
	}
	tenant, err := tenantID(r)
	if err != nil {
		writeError(NewResponseWriter(w, r), err)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := ws.NewClient(h.deps.Hub, conn, tenant)
	h.deps.Hub.Register <- client
	client.Start()
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts configured origins. Browsers always send
// Origin, so a missing one is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("websocket connection rejected: missing Origin header")
		return false
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and truncates.
func sanitizeLogValue(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLoggedOrigin {
		s = s[:maxLoggedOrigin]
	}
	return s
}
