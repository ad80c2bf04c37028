// Package session owns one client's line selection and its cached query region.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/turkim1/map-paris/internal/activity"
	"github.com/turkim1/map-paris/internal/core/model"
	"github.com/turkim1/map-paris/internal/core/observability"
	"github.com/turkim1/map-paris/internal/geom"
	"github.com/turkim1/map-paris/internal/isochrone"
	"github.com/turkim1/map-paris/internal/logger"
	"github.com/turkim1/map-paris/internal/overlap"
	"github.com/turkim1/map-paris/internal/places"
)

type State string

const (
	StateEmpty State = "EMPTY"
	StateReady State = "READY"
)

// Catalog is the read-only reference data a session draws stations from.
type Catalog interface {
	Boundary() orb.MultiPolygon
	HasLine(model.LineID) bool
	Stations(model.LineID) []model.Station
}

type RegionBuilder interface {
	Build(ctx context.Context, stations []model.Station, walkMinutes int, boundary orb.MultiPolygon) (orb.MultiPolygon, error)
}

type PlaceFinder interface {
	Find(ctx context.Context, region orb.MultiPolygon, category string,
		stations map[model.LineID][]model.Station, lines []model.LineID) places.Result
}

type Limits struct {
	MaxLines       int
	MinWalkMinutes int
	MaxWalkMinutes int
}

func (l Limits) withDefaults() Limits {
	if l.MaxLines < 2 {
		l.MaxLines = 3
	}
	if l.MinWalkMinutes < 1 {
		l.MinWalkMinutes = 1
	}
	if l.MaxWalkMinutes < l.MinWalkMinutes {
		l.MaxWalkMinutes = 60
	}
	return l
}

// Core holds the collaborators shared by every session.
type Core struct {
	logger  *slog.Logger
	catalog Catalog
	builder RegionBuilder
	overlap *overlap.Calculator
	finder  PlaceFinder
	limits  Limits
	events  activity.Sink
	now     func() time.Time
}

func NewCore(l *slog.Logger, catalog Catalog, builder RegionBuilder, calc *overlap.Calculator, finder PlaceFinder, limits Limits) *Core {
	return &Core{
		logger:  l,
		catalog: catalog,
		builder: builder,
		overlap: calc,
		finder:  finder,
		limits:  limits.withDefaults(),
		events:  activity.Nop{},
		now:     time.Now,
	}
}

// SetEvents routes generation and search outcomes to sink.
func (c *Core) SetEvents(sink activity.Sink) {
	if sink == nil {
		sink = activity.Nop{}
	}
	c.events = sink
}

func (c *Core) emit(ev activity.Event, lines []model.LineID) {
	ev.Lines = make([]string, len(lines))
	for i, l := range lines {
		ev.Lines[i] = string(l)
	}
	ev.TS = c.now().UTC()
	c.events.Publish(ev)
}

type LineRegion struct {
	Line    model.LineID
	Polygon orb.MultiPolygon
}

// QueryRegion is the committed outcome of a successful generation.
type QueryRegion struct {
	Lines       []model.LineID
	WalkMinutes int
	Regions     []LineRegion
	Overlap     overlap.Result
	Mode        overlap.Mode
	AreaKm2     float64
	GeneratedAt time.Time
}

// Polygon is the area places are searched in.
func (q *QueryRegion) Polygon() orb.MultiPolygon { return q.Overlap.Polygon }

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	ID          string         `json:"id"`
	Lines       []model.LineID `json:"lines"`
	State       State          `json:"state"`
	WalkMinutes int            `json:"walk_minutes,omitempty"`
	Version     uint64         `json:"version"`
}

type Session struct {
	id   string
	core *Core

	mu        sync.Mutex
	selection model.Selection
	version   uint64
	state     State
	query     *QueryRegion
}

func (c *Core) NewSession(id string) *Session {
	return &Session{id: id, core: c, state: StateEmpty, selection: model.Selection{}}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:      s.id,
		Lines:   append([]model.LineID{}, s.selection...),
		State:   s.state,
		Version: s.version,
	}
	if s.query != nil {
		snap.WalkMinutes = s.query.WalkMinutes
	}
	return snap
}

// QueryRegion returns the cached region, or nil while EMPTY.
func (s *Session) QueryRegion() *QueryRegion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// SetSelectedLines replaces the selection. The cache is only invalidated when
// the set of lines differs from the current one.
func (s *Session) SetSelectedLines(ctx context.Context, lines []model.LineID) error {
	sel := model.Selection(lines).Normalize()
	if len(sel) > s.core.limits.MaxLines {
		return precondition(ErrTooManyLines, "%d selected, at most %d", len(sel), s.core.limits.MaxLines)
	}
	for _, l := range sel {
		if !s.core.catalog.HasLine(l) {
			return precondition(ErrUnknownLine, "%q", l)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sel.SameSet(s.selection) {
		s.selection = sel
		return nil
	}
	s.selection = sel
	s.version++
	s.invalidateLocked(ctx, "selection_changed")
	return nil
}

func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = model.Selection{}
	s.version++
	s.invalidateLocked(ctx, "reset")
}

func (s *Session) invalidateLocked(ctx context.Context, reason string) {
	if s.state == StateReady {
		observability.IncCacheTransition(string(StateEmpty), reason)
		s.core.logger.DebugContext(logger.WithSession(ctx, s.id), "query region invalidated", "reason", reason)
	}
	s.state = StateEmpty
	s.query = nil
}

// GenerateQueryRegion builds a region per selected line and overlaps them.
// The result is only committed if the selection is unchanged at completion.
func (s *Session) GenerateQueryRegion(ctx context.Context, walkMinutes int) (*QueryRegion, error) {
	ctx = logger.WithSession(ctx, s.id)
	lim := s.core.limits

	s.mu.Lock()
	sel := append(model.Selection{}, s.selection...)
	version := s.version
	s.mu.Unlock()

	if len(sel) < 2 {
		observability.ObserveQueryRegion("precondition", 0)
		return nil, precondition(ErrTooFewLines, "%d selected", len(sel))
	}
	if walkMinutes < lim.MinWalkMinutes || walkMinutes > lim.MaxWalkMinutes {
		observability.ObserveQueryRegion("precondition", 0)
		return nil, precondition(ErrInvalidWalkTime, "%d minutes, want %d..%d",
			walkMinutes, lim.MinWalkMinutes, lim.MaxWalkMinutes)
	}

	boundary := s.core.catalog.Boundary()
	regions := make([]LineRegion, 0, len(sel))
	upstreamLost := false
	for _, line := range sel {
		stations := s.core.catalog.Stations(line)
		if len(stations) == 0 {
			s.core.logger.InfoContext(ctx, "line has no stations inside the boundary", "line", string(line))
			continue
		}
		poly, err := s.core.builder.Build(ctx, stations, walkMinutes, boundary)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, fmt.Errorf("generate query region: %w", cerr)
			}
			if errors.Is(err, isochrone.ErrUpstream) {
				upstreamLost = true
			}
			s.core.logger.WarnContext(ctx, "line skipped", "line", string(line), "err", err)
			continue
		}
		regions = append(regions, LineRegion{Line: line, Polygon: poly})
	}

	if len(regions) < 2 {
		err := ErrNoRegions
		outcome := "no_regions"
		if upstreamLost {
			err, outcome = ErrUpstream, "upstream"
		}
		s.fail(ctx, version, outcome, sel, walkMinutes)
		return nil, fmt.Errorf("%w: %d of %d lines produced a region", err, len(regions), len(sel))
	}

	polys := make([]orb.MultiPolygon, len(regions))
	for i, r := range regions {
		polys[i] = r.Polygon
	}
	res, ok := s.core.overlap.IntersectAll(polys)
	if !ok {
		s.fail(ctx, version, "no_overlap", sel, walkMinutes)
		return nil, ErrNoOverlap
	}

	q := &QueryRegion{
		Lines:       sel,
		WalkMinutes: walkMinutes,
		Regions:     regions,
		Overlap:     res,
		Mode:        s.core.overlap.Mode(),
		AreaKm2:     geom.AreaKm2(res.Polygon),
		GeneratedAt: s.core.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		observability.ObserveQueryRegion("stale", 0)
		s.core.emit(activity.Event{Kind: "query_region", SessionID: s.id, WalkMinutes: walkMinutes, Outcome: "stale"}, sel)
		s.core.logger.InfoContext(ctx, "discarding stale query region",
			"started_version", version, "current_version", s.version)
		return nil, ErrStaleSelection
	}
	if s.state == StateEmpty {
		observability.IncCacheTransition(string(StateReady), "generated")
	}
	s.state = StateReady
	s.query = q
	observability.ObserveQueryRegion("ok", q.AreaKm2)
	s.core.emit(activity.Event{
		Kind: "query_region", SessionID: s.id, WalkMinutes: walkMinutes, Outcome: "ok", AreaKm2: q.AreaKm2,
	}, sel)
	s.core.logger.InfoContext(ctx, "query region ready",
		"lines", len(sel),
		"regions", len(regions),
		"pairs", len(res.Pairs),
		"area_km2", q.AreaKm2,
		"mode", string(q.Mode))
	return q, nil
}

// fail empties the cache unless the selection moved on in the meantime.
func (s *Session) fail(ctx context.Context, version uint64, outcome string, sel []model.LineID, walkMinutes int) {
	observability.ObserveQueryRegion(outcome, 0)
	s.core.emit(activity.Event{Kind: "query_region", SessionID: s.id, WalkMinutes: walkMinutes, Outcome: outcome}, sel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return
	}
	s.invalidateLocked(ctx, "generation_failed")
}

// FindPlaces searches the cached query region. It requires READY.
func (s *Session) FindPlaces(ctx context.Context, category string) (places.Result, error) {
	ctx = logger.WithSession(ctx, s.id)
	if !places.ValidCategory(category) {
		return places.Result{}, precondition(ErrInvalidCategory, "%q", category)
	}

	s.mu.Lock()
	q := s.query
	ready := s.state == StateReady
	s.mu.Unlock()
	if !ready || q == nil {
		return places.Result{}, precondition(ErrNoQueryRegion, "state %s", StateEmpty)
	}

	stations := make(map[model.LineID][]model.Station, len(q.Lines))
	for _, l := range q.Lines {
		stations[l] = s.core.catalog.Stations(l)
	}
	res := s.core.finder.Find(ctx, q.Polygon(), category, stations, q.Lines)
	outcome := "ok"
	switch {
	case res.Failed:
		outcome = "upstream_failed"
	case len(res.Places) == 0:
		outcome = "no_results"
	}
	s.core.emit(activity.Event{
		Kind: "places", SessionID: s.id, Category: category, Outcome: outcome, Places: len(res.Places),
	}, q.Lines)
	return res, nil
}
