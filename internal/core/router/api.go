package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/turkim1/map-paris/internal/core/model"
	"github.com/turkim1/map-paris/internal/logger"
	"github.com/turkim1/map-paris/internal/places"
	"github.com/turkim1/map-paris/internal/session"
)

const maxRequestBytes = 64 << 10

type api struct {
	logger   *slog.Logger
	lines    LineCatalog
	sessions *session.Registry
}

type ctxKey struct{}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(ctxKey{}).(*session.Session)
	return s
}

func (a *api) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s, ok := a.sessions.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		ctx := logger.WithSession(r.Context(), s.ID())
		ctx = context.WithValue(ctx, ctxKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrTooFewLines),
		errors.Is(err, session.ErrNoQueryRegion),
		errors.Is(err, session.ErrStaleSelection):
		return http.StatusConflict
	case session.IsPrecondition(err):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed", "err", err)
	} else {
		a.logger.InfoContext(r.Context(), "request rejected", "status", status, "err", err)
	}
	writeError(w, status, err.Error())
}

func (a *api) listLines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.lines.Summary())
}

func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	s := a.sessions.Create()
	a.logger.InfoContext(logger.WithSession(r.Context(), s.ID()), "session created")
	w.Header().Set("Location", "/sessions/"+s.ID())
	writeJSON(w, http.StatusCreated, map[string]string{"id": s.ID()})
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r.Context()).State())
}

func (a *api) setLines(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lines []model.LineID `json:"lines"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s := sessionFrom(r.Context())
	if err := s.SetSelectedLines(r.Context(), body.Lines); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

func (a *api) queryRegion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WalkMinutes int `json:"walk_minutes"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := sessionFrom(r.Context()).GenerateQueryRegion(r.Context(), body.WalkMinutes)
	switch {
	case errors.Is(err, session.ErrNoOverlap):
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_overlap"})
		return
	case errors.Is(err, session.ErrNoRegions):
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_regions"})
		return
	case err != nil:
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(QueryRegionCollection(q))
}

type placesResponse struct {
	Status string        `json:"status"`
	Places []model.Place `json:"places"`
}

func (a *api) findPlaces(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	res, err := sessionFrom(r.Context()).FindPlaces(r.Context(), category)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, placesBody(res))
}

func placesBody(res places.Result) placesResponse {
	out := placesResponse{Status: "ok", Places: res.Places}
	switch {
	case res.Failed:
		out.Status = "upstream_failed"
	case len(res.Places) == 0:
		out.Status = "no_results"
	}
	if out.Places == nil {
		out.Places = []model.Place{}
	}
	return out
}

func (a *api) reset(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	s.Reset(r.Context())
	writeJSON(w, http.StatusOK, s.State())
}
