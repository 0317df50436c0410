// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/tomtom215/fieldsync/internal/auth"
	"github.com/tomtom215/fieldsync/internal/authz"
	"github.com/tomtom215/fieldsync/internal/middleware"
)

// Router wires the handler behind the middleware stack.
type Router struct {
	handler       *Handler
	authn         *auth.Middleware
	authz         *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. Authentication and authorization failures are
// rendered in the standard envelope.
func NewRouter(handler *Handler, authn *auth.Middleware, authzMw *authz.Middleware, mwConfig *ChiMiddlewareConfig) *Router {
	authn.OnFailure(func(w http.ResponseWriter, r *http.Request, err error) {
		msg := "authentication failed"
		if errors.Is(err, auth.ErrNoCredentials) {
			msg = "authentication required"
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="fieldsync"`)
		NewResponseWriter(w, r).Unauthorized(msg)
	})
	authzMw.OnDenied(func(w http.ResponseWriter, r *http.Request, status int, err error) {
		rw := NewResponseWriter(w, r)
		if status == http.StatusForbidden {
			rw.Forbidden(err.Error())
			return
		}
		rw.InternalError(err)
	})
	return &Router{
		handler:       handler,
		authn:         authn,
		authz:         authzMw,
		chiMiddleware: NewChiMiddleware(mwConfig),
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Probes stay unauthenticated.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.authn.Authenticate)
		r.Use(router.authz.Authorize)

		// The websocket upgrade must see the raw writer.
		r.Get("/ws", router.handler.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Compress(5, "application/json"))

			r.Route("/sync", func(r chi.Router) {
				r.Post("/trigger", router.handler.TriggerSync)
				r.Post("/cancel", router.handler.CancelSync)
				r.Get("/status", router.handler.SyncStatus)
				r.Get("/history", router.handler.SyncHistory)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/tree", router.handler.CategoryTree)
				r.Get("/pending", router.handler.PendingCategories)
				r.Post("/push", router.handler.PushCategories)
				r.Patch("/{id}/override", router.handler.OverrideCategory)
				r.Post("/{id}/move", router.handler.MoveCategory)
				r.Post("/{id}/move-to-top", router.handler.MoveCategoryToTop)
				r.Post("/{id}/move-to-bottom", router.handler.MoveCategoryToBottom)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", router.handler.ListJobs)
				r.Get("/stats", router.handler.JobStats)
				r.Post("/{id}/retry", router.handler.RetryJob)
			})

			r.Delete("/cache/{entityType}", router.handler.PurgeCache)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	return r
}
