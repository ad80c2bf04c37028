package places

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/paulmach/orb"

	"github.com/turkim1/map-paris/internal/core/model"
	"github.com/turkim1/map-paris/internal/core/observability"
	"github.com/turkim1/map-paris/internal/geom"
	"github.com/turkim1/map-paris/internal/stationindex"
)

const NoAddress = "No address"

var categoryPattern = regexp.MustCompile(`^[a-z_]{1,32}$`)

// ValidCategory accepts amenity tag values such as "cafe" or "fast_food".
func ValidCategory(s string) bool {
	return categoryPattern.MatchString(s)
}

type Finder struct {
	logger     *slog.Logger
	source     Source
	nearestRes int
}

func NewFinder(logger *slog.Logger, source Source, nearestRes int) *Finder {
	return &Finder{logger: logger, source: source, nearestRes: nearestRes}
}

// Result.Failed separates an upstream failure from a genuine empty answer.
type Result struct {
	Places []model.Place
	Failed bool
}

// Find never returns an error: upstream problems are logged and yield no places.
func (f *Finder) Find(
	ctx context.Context,
	region orb.MultiPolygon,
	category string,
	stations map[model.LineID][]model.Station,
	lines []model.LineID,
) Result {
	if geom.IsEmpty(region) {
		return Result{Places: []model.Place{}}
	}
	bbox := model.BBoxFromBound(geom.Bound(region))

	elems, err := f.source.Amenities(ctx, bbox, category)
	if err != nil {
		f.logger.WarnContext(ctx, "places lookup failed", "category", category, "err", err)
		observability.ObservePlaces(category, 0)
		return Result{Places: []model.Place{}, Failed: true}
	}
	if len(elems) == 0 {
		f.logger.InfoContext(ctx, "no places returned", "category", category)
		observability.ObservePlaces(category, 0)
		return Result{Places: []model.Place{}}
	}

	var idx *stationindex.Set
	if len(lines) > 0 {
		idx, err = stationindex.NewSet(stations, lines, f.nearestRes)
		if err != nil {
			f.logger.WarnContext(ctx, "station index unavailable", "err", err)
			idx = nil
		}
	}

	out := make([]model.Place, 0, len(elems))
	for _, el := range elems {
		pt := orb.Point{el.Lon, el.Lat}
		if !geom.Contains(region, pt) {
			continue
		}
		p := toPlace(el, category)
		if idx != nil {
			p.NearestStations = idx.Nearest(pt)
		}
		out = append(out, p)
	}
	observability.ObservePlaces(category, len(out))
	f.logger.DebugContext(ctx, "places filtered",
		"category", category, "raw", len(elems), "inside", len(out))
	return Result{Places: out}
}

func toPlace(el Element, category string) model.Place {
	name := el.Tags["name"]
	if name == "" {
		name = "Unknown"
	}
	cat := el.Tags["amenity"]
	if cat == "" {
		cat = category
	}
	var hours *string
	if h := el.Tags["opening_hours"]; h != "" {
		hours = &h
	}
	return model.Place{
		Name:         name,
		Category:     cat,
		Lat:          el.Lat,
		Lon:          el.Lon,
		Address:      Address(el.Tags),
		OpeningHours: hours,
	}
}

// Address renders "{housenumber} {street}" or NoAddress when both are missing.
func Address(tags map[string]string) string {
	a := strings.TrimSpace(tags["addr:housenumber"] + " " + tags["addr:street"])
	if a == "" {
		return NoAddress
	}
	return a
}
