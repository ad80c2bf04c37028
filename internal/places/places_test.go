package places

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/turkim1/map-paris/internal/core/model"
	"github.com/turkim1/map-paris/internal/logger"
	"github.com/turkim1/map-paris/internal/stationindex"
)

var parisBox = model.BBox{West: 2.34, South: 48.85, East: 2.36, North: 48.87}

func TestBuildQuery_BBoxOrderAndCategory(t *testing.T) {
	q := BuildQuery(parisBox, "cafe", 25)
	for _, want := range []string{
		"[out:json][timeout:25];",
		`node["amenity"="cafe"](48.850000,2.340000,48.870000,2.360000);`,
		"out body;",
	} {
		if !strings.Contains(q, want) {
			t.Fatalf("query missing %q:\n%s", want, q)
		}
	}
}

func TestOverpass_PostsFormAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !strings.Contains(r.PostForm.Get("data"), `"amenity"="bar"`) {
			http.Error(w, "missing amenity filter", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"version":0.6,"elements":[
		 {"type":"node","id":1,"lat":48.86,"lon":2.35,"tags":{"amenity":"bar","name":"Le Zinc"}}]}`)
	}))
	defer srv.Close()

	c, err := NewOverpass(logger.Discard(), srv.Client(), srv.URL, 25, time.Second)
	if err != nil {
		t.Fatalf("NewOverpass: %v", err)
	}
	els, err := c.Amenities(context.Background(), parisBox, "bar")
	if err != nil {
		t.Fatalf("Amenities: %v", err)
	}
	if len(els) != 1 || els[0].Tags["name"] != "Le Zinc" || els[0].ID != 1 {
		t.Fatalf("elements=%+v", els)
	}
}

func TestOverpass_ErrorsAndValidation(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewOverpass(logger.Discard(), srv.Client(), srv.URL, 25, time.Second)
	if err != nil {
		t.Fatalf("NewOverpass: %v", err)
	}
	if _, err := c.Amenities(context.Background(), parisBox, "cafe"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("err=%v want ErrUpstream", err)
	}
	if _, err := c.Amenities(context.Background(), parisBox, `cafe"];node(1`); err == nil {
		t.Fatalf("expected invalid category error")
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1 (invalid category must not reach upstream)", calls)
	}
}

type fakeSource struct {
	els   []Element
	err   error
	calls int
	bbox  model.BBox
}

func (f *fakeSource) Amenities(_ context.Context, bbox model.BBox, _ string) ([]Element, error) {
	f.calls++
	f.bbox = bbox
	return f.els, f.err
}

// triangle whose bbox is [2.34,2.36]x[48.85,48.87]
var region = orb.MultiPolygon{{orb.Ring{{2.34, 48.85}, {2.36, 48.85}, {2.34, 48.87}, {2.34, 48.85}}}}

func TestFind_FiltersToPolygonAndEnriches(t *testing.T) {
	src := &fakeSource{els: []Element{
		{Type: "node", ID: 1, Lat: 48.852, Lon: 2.342, Tags: map[string]string{
			"amenity": "cafe", "name": "Cafe A", "addr:housenumber": "12", "addr:street": "Rue de Rivoli", "opening_hours": "Mo-Su 08:00-20:00"}},
		// inside the bbox, outside the triangle
		{Type: "node", ID: 2, Lat: 48.869, Lon: 2.359, Tags: map[string]string{"amenity": "cafe", "name": "Cafe B"}},
		{Type: "node", ID: 3, Lat: 48.855, Lon: 2.345, Tags: map[string]string{"addr:street": "Quai"}},
	}}
	stations := map[model.LineID][]model.Station{
		"A": {{Name: "Alpha", Lat: 48.851, Lon: 2.341, Line: "A"}},
		"B": {{Name: "Beta", Lat: 48.866, Lon: 2.358, Line: "B"}},
	}
	f := NewFinder(logger.Discard(), src, stationindex.DefaultRes)

	res := f.Find(context.Background(), region, "cafe", stations, []model.LineID{"A", "B"})
	if res.Failed {
		t.Fatalf("unexpected failure flag")
	}
	if src.bbox != parisBox {
		t.Fatalf("bbox=%+v want %+v", src.bbox, parisBox)
	}
	if len(res.Places) != 2 {
		t.Fatalf("places=%d want 2: %+v", len(res.Places), res.Places)
	}

	a := res.Places[0]
	if a.Name != "Cafe A" || a.Address != "12 Rue de Rivoli" || a.OpeningHours == nil || *a.OpeningHours != "Mo-Su 08:00-20:00" {
		t.Fatalf("place A=%+v", a)
	}
	if len(a.NearestStations) != 2 ||
		a.NearestStations[0].Label != "Nearest station to A: Alpha" ||
		a.NearestStations[1].Label != "Nearest station to B: Beta" {
		t.Fatalf("nearest=%+v", a.NearestStations)
	}

	c := res.Places[1]
	if c.Name != "Unknown" || c.Category != "cafe" || c.Address != "Quai" || c.OpeningHours != nil {
		t.Fatalf("place C=%+v", c)
	}
}

func TestFind_SoftFailures(t *testing.T) {
	f := NewFinder(logger.Discard(), &fakeSource{err: ErrUpstream}, stationindex.DefaultRes)
	res := f.Find(context.Background(), region, "bar", nil, nil)
	if !res.Failed || res.Places == nil || len(res.Places) != 0 {
		t.Fatalf("upstream error result=%+v", res)
	}

	f = NewFinder(logger.Discard(), &fakeSource{}, stationindex.DefaultRes)
	res = f.Find(context.Background(), region, "bar", nil, nil)
	if res.Failed || len(res.Places) != 0 {
		t.Fatalf("empty result=%+v", res)
	}

	src := &fakeSource{}
	f = NewFinder(logger.Discard(), src, stationindex.DefaultRes)
	f.Find(context.Background(), nil, "bar", nil, nil)
	if src.calls != 0 {
		t.Fatalf("empty region must not query upstream")
	}
}

func TestAddress(t *testing.T) {
	cases := map[string]map[string]string{
		"No address":      {},
		"7":               {"addr:housenumber": "7"},
		"Rue Oberkampf":   {"addr:street": "Rue Oberkampf"},
		"3 Rue Oberkampf": {"addr:housenumber": "3", "addr:street": "Rue Oberkampf"},
	}
	for want, tags := range cases {
		if got := Address(tags); got != want {
			t.Fatalf("Address(%v)=%q want %q", tags, got, want)
		}
	}
}

func TestValidCategory(t *testing.T) {
	for _, ok := range []string{"cafe", "fast_food", "pub"} {
		if !ValidCategory(ok) {
			t.Fatalf("%q should be valid", ok)
		}
	}
	for _, bad := range []string{"", "Cafe", "bar;", `x"]`, strings.Repeat("a", 33)} {
		if ValidCategory(bad) {
			t.Fatalf("%q should be invalid", bad)
		}
	}
}
