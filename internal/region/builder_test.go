package region

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/turkim1/map-paris/internal/core/model"
	"github.com/turkim1/map-paris/internal/geom"
	"github.com/turkim1/map-paris/internal/isochrone"
	"github.com/turkim1/map-paris/internal/logger"
)

// squareProvider answers with a square of half-width d around each location.
type squareProvider struct {
	mu     sync.Mutex
	d      float64
	failAt int // 1-based call number that fails, 0 = never
	calls  []isochrone.Request
}

func (p *squareProvider) Isochrones(_ context.Context, req isochrone.Request) ([]orb.MultiPolygon, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.failAt > 0 && len(p.calls) == p.failAt {
		return nil, fmt.Errorf("%w: status 500", isochrone.ErrUpstream)
	}
	out := make([]orb.MultiPolygon, 0, len(req.Locations))
	for _, l := range req.Locations {
		out = append(out, orb.MultiPolygon{square(l[0]-p.d, l[1]-p.d, l[0]+p.d, l[1]+p.d)})
	}
	return out, nil
}

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

var bigBoundary = orb.MultiPolygon{square(-10, -10, 100, 100)}

func stations(n int) []model.Station {
	out := make([]model.Station, n)
	for i := range out {
		// staggered latitudes keep square edges from being collinear
		out[i] = model.Station{Name: fmt.Sprintf("s%d", i), Lon: float64(i), Lat: float64(i) * 0.13, Line: "A"}
	}
	return out
}

func newBuilder(p isochrone.Provider) *Builder {
	return NewBuilder(logger.Discard(), p, geom.NewPolyclip(), 5)
}

func TestBuild_ChunksCoverEveryStationOnceInOrder(t *testing.T) {
	for _, n := range []int{1, 4, 5, 6, 10, 12} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			p := &squareProvider{d: 0.25}
			if _, err := newBuilder(p).Build(context.Background(), stations(n), 10, bigBoundary); err != nil {
				t.Fatalf("Build: %v", err)
			}
			if want := (n + 4) / 5; len(p.calls) != want {
				t.Fatalf("calls=%d want %d", len(p.calls), want)
			}
			next := 0
			for _, c := range p.calls {
				if len(c.Locations) == 0 || len(c.Locations) > 5 {
					t.Fatalf("chunk size %d out of range", len(c.Locations))
				}
				if c.Range[0] != 600 || c.RangeType != "time" {
					t.Fatalf("request params=%+v", c)
				}
				for _, l := range c.Locations {
					if l[0] != float64(next) {
						t.Fatalf("location lon=%v want %d", l[0], next)
					}
					next++
				}
			}
			if next != n {
				t.Fatalf("covered %d stations want %d", next, n)
			}
		})
	}
}

func TestBuild_EmptyStationsMakesNoCall(t *testing.T) {
	p := &squareProvider{d: 0.25}
	_, err := newBuilder(p).Build(context.Background(), nil, 10, bigBoundary)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
	if len(p.calls) != 0 {
		t.Fatalf("calls=%d want 0", len(p.calls))
	}
}

func TestBuild_ChunkFailureDiscardsPartialUnion(t *testing.T) {
	p := &squareProvider{d: 0.25, failAt: 2}
	got, err := newBuilder(p).Build(context.Background(), stations(12), 10, bigBoundary)
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, isochrone.ErrUpstream) {
		t.Fatalf("err=%v want ErrNotFound wrapping ErrUpstream", err)
	}
	if got != nil {
		t.Fatalf("partial region returned: %v", got)
	}
	if len(p.calls) != 2 {
		t.Fatalf("calls=%d want 2 (abort after failure)", len(p.calls))
	}
}

func TestBuild_UnionsAndClipsToBoundary(t *testing.T) {
	p := &squareProvider{d: 1}
	st := []model.Station{{Name: "a", Lon: 0, Lat: 0, Line: "A"}, {Name: "b", Lon: 1, Lat: 0.3, Line: "A"}}
	boundary := orb.MultiPolygon{square(-0.5, -5, 5, 5)}

	got, err := newBuilder(p).Build(context.Background(), st, 10, boundary)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// squares overlap in 1 x 1.7, so the union is 6.3; clipping x<-0.5 removes 0.5 x 2
	if a := planar.Area(got); a < 5.299 || a > 5.301 {
		t.Fatalf("area=%v want 5.3", a)
	}
	if geom.Contains(got, orb.Point{-0.8, 0}) {
		t.Fatalf("region leaks outside boundary")
	}
}

func TestBuild_OutsideBoundaryIsNotFound(t *testing.T) {
	p := &squareProvider{d: 0.1}
	boundary := orb.MultiPolygon{square(50, 50, 60, 60)}
	_, err := newBuilder(p).Build(context.Background(), stations(2), 10, boundary)
	if !errors.Is(err, ErrNotFound) || errors.Is(err, isochrone.ErrUpstream) {
		t.Fatalf("err=%v want plain ErrNotFound", err)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	p := &squareProvider{d: 0.7}
	b := newBuilder(p)
	a1, err := b.Build(context.Background(), stations(7), 10, bigBoundary)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	a2, err := b.Build(context.Background(), stations(7), 10, bigBoundary)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !a1.Equal(a2) {
		t.Fatalf("same input produced different regions")
	}
}

func TestChunk(t *testing.T) {
	got := Chunk(stations(11), 5)
	if len(got) != 3 || len(got[0]) != 5 || len(got[2]) != 1 || got[2][0].Name != "s10" {
		t.Fatalf("chunks=%v", got)
	}
	if len(Chunk(nil, 5)) != 0 {
		t.Fatalf("empty input must give no chunks")
	}
}
