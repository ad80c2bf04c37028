package router

import (
	"github.com/paulmach/orb/geojson"

	"github.com/turkim1/map-paris/internal/geom"
	"github.com/turkim1/map-paris/internal/session"
)

// QueryRegionCollection renders every layer of a query region. Features carry a
// "kind" property: region (one per line), pair, triple and finally query.
func QueryRegionCollection(q *session.QueryRegion) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range q.Regions {
		f := geojson.NewFeature(geom.Geometry(r.Polygon))
		f.Properties["kind"] = "region"
		f.Properties["line"] = string(r.Line)
		fc.Append(f)
	}
	for _, p := range q.Overlap.Pairs {
		f := geojson.NewFeature(geom.Geometry(p.Polygon))
		f.Properties["kind"] = "pair"
		f.Properties["lines"] = []string{string(q.Regions[p.I].Line), string(q.Regions[p.J].Line)}
		fc.Append(f)
	}
	if !geom.IsEmpty(q.Overlap.Triple) {
		f := geojson.NewFeature(geom.Geometry(q.Overlap.Triple))
		f.Properties["kind"] = "triple"
		fc.Append(f)
	}

	f := geojson.NewFeature(geom.Geometry(q.Polygon()))
	f.Properties["kind"] = "query"
	f.Properties["mode"] = string(q.Mode)
	f.Properties["walk_minutes"] = q.WalkMinutes
	f.Properties["area_km2"] = q.AreaKm2
	f.BBox = geojson.NewBBox(geom.Bound(q.Polygon()))
	fc.Append(f)
	return fc
}
