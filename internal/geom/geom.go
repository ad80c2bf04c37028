// Package geom holds the planar geometry operations used by the overlap pipeline.
//
// All geometry is EPSG:4326 [lon, lat]. Boolean operations run through an Engine so
// any conformant clipping library can be substituted in tests.
package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

type Engine interface {
	Union(a, b orb.MultiPolygon) orb.MultiPolygon
	Intersect(a, b orb.MultiPolygon) orb.MultiPolygon
}

func IsEmpty(mp orb.MultiPolygon) bool {
	for _, p := range mp {
		if len(p) > 0 && len(p[0]) >= 4 {
			return false
		}
	}
	return true
}

func Bound(mp orb.MultiPolygon) orb.Bound {
	return mp.Bound()
}

// Contains reports whether pt lies inside mp; points on an edge count as inside.
func Contains(mp orb.MultiPolygon, pt orb.Point) bool {
	if IsEmpty(mp) {
		return false
	}
	if !mp.Bound().Contains(pt) {
		return false
	}
	return planar.MultiPolygonContains(mp, pt)
}

// FromGeometry extracts the polygonal parts of g.
func FromGeometry(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch t := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{t}, true
	case orb.MultiPolygon:
		return t, true
	case orb.Bound:
		return orb.MultiPolygon{t.ToPolygon()}, true
	case orb.Collection:
		var out orb.MultiPolygon
		for _, sub := range t {
			if mp, ok := FromGeometry(sub); ok {
				out = append(out, mp...)
			}
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}

// Geometry returns a Polygon for single-part values, otherwise the MultiPolygon itself.
func Geometry(mp orb.MultiPolygon) orb.Geometry {
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

// AreaKm2 is the geodesic area of mp in square kilometres.
func AreaKm2(mp orb.MultiPolygon) float64 {
	if IsEmpty(mp) {
		return 0
	}
	return math.Abs(geo.Area(mp)) / 1e6
}
