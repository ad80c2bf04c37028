// Package router mounts the HTTP API of the service on a chi router.
package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turkim1/map-paris/internal/core/health"
	"github.com/turkim1/map-paris/internal/core/middleware"
	"github.com/turkim1/map-paris/internal/dataset"
	"github.com/turkim1/map-paris/internal/session"
)

type LineCatalog interface {
	Summary() []dataset.LineSummary
}

type Deps struct {
	Logger         *slog.Logger
	Lines          LineCatalog
	Sessions       *session.Registry
	Readiness      health.ReadinessReporter
	Isochrones     http.Handler // nil when the proxy is disabled
	AllowedOrigins []string
}

func New(d Deps) http.Handler {
	a := &api{logger: d.Logger, lines: d.Lines, sessions: d.Sessions}

	r := chi.NewRouter()
	r.Use(middleware.Recover(d.Logger))
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.CORS(d.AllowedOrigins))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Readiness))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if d.Isochrones != nil {
		r.Handle("/api/isochrones", d.Isochrones)
	}

	r.Get("/lines", a.listLines)
	r.Post("/sessions", a.createSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Use(a.withSession)
		r.Get("/", a.getSession)
		r.Put("/lines", a.setLines)
		r.Post("/query-region", a.queryRegion)
		r.Get("/places", a.findPlaces)
		r.Post("/reset", a.reset)
	})
	return r
}
