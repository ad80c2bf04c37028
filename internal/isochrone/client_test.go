package isochrone

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/turkim1/map-paris/internal/logger"
)

const twoSquares = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"group_index":0,"value":600,"area":1.2},"geometry":{"type":"Polygon","coordinates":[[[2.34,48.85],[2.36,48.85],[2.36,48.87],[2.34,48.87],[2.34,48.85]]]}},
 {"type":"Feature","properties":{"group_index":1,"value":600,"area":1.1},"geometry":{"type":"Polygon","coordinates":[[[2.35,48.86],[2.37,48.86],[2.37,48.88],[2.35,48.88],[2.35,48.86]]]}}
]}`

func newClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(logger.Discard(), srv.Client(), srv.URL+"/api/isochrones", timeout)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequest_SecondsAndLonLatOrder(t *testing.T) {
	req := NewRequest([]orb.Point{{2.35, 48.86}}, 10)
	b, _ := json.Marshal(req)
	want := `{"locations":[[2.35,48.86]],"range":[600],"range_type":"time","attributes":["area"]}`
	if string(b) != want {
		t.Fatalf("body=%s want %s", b, want)
	}
}

func TestIsochrones_PostsBodyAndDecodesPolygons(t *testing.T) {
	var got Request
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/isochrones" {
			http.Error(w, "bad route", http.StatusNotFound)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, twoSquares)
	}, time.Second)

	polys, err := c.Isochrones(context.Background(), NewRequest([]orb.Point{{2.35, 48.86}, {2.36, 48.87}}, 5))
	if err != nil {
		t.Fatalf("Isochrones: %v", err)
	}
	if len(polys) != 2 {
		t.Fatalf("polygons=%d want 2", len(polys))
	}
	if len(got.Locations) != 2 || got.Range[0] != 300 || got.RangeType != "time" {
		t.Fatalf("request seen upstream=%+v", got)
	}
}

func TestIsochrones_FailuresAreUpstreamErrors(t *testing.T) {
	cases := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"status 500", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"Failed to fetch isochrone data"}`, http.StatusInternalServerError)
		}},
		{"malformed", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "{not json") }},
		{"empty", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[]}`)
		}},
		{"points", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}]}`)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, tc.h, time.Second)
			_, err := c.Isochrones(context.Background(), NewRequest([]orb.Point{{2.35, 48.86}}, 10))
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("err=%v want ErrUpstream", err)
			}
		})
	}
}

func TestIsochrones_TimeoutIsUpstreamError(t *testing.T) {
	release := make(chan struct{})
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := c.Isochrones(context.Background(), NewRequest([]orb.Point{{2.35, 48.86}}, 10))
	if !errors.Is(err, ErrUpstream) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want ErrUpstream wrapping deadline", err)
	}
}

func TestIsochrones_RejectsOversizedBatch(t *testing.T) {
	calls := 0
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) { calls++ }, time.Second)
	pts := make([]orb.Point, MaxLocations+1)
	if _, err := c.Isochrones(context.Background(), NewRequest(pts, 10)); err == nil {
		t.Fatalf("expected error for %d locations", len(pts))
	}
	if calls != 0 {
		t.Fatalf("no request may be sent for an oversized batch")
	}
}
