// Package overlap intersects per-line regions into the query region.
package overlap

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/turkim1/map-paris/internal/geom"
)

type Mode string

const (
	// ModePairs queries the union of all pairwise intersections.
	ModePairs Mode = "pairs"
	// ModeStrict queries only the area shared by every region.
	ModeStrict Mode = "strict"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePairs:
		return ModePairs, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("unknown overlap mode %q (want pairs or strict)", s)
	}
}

// Pair is the non-empty intersection of regions I and J, I < J.
type Pair struct {
	I, J    int
	Polygon orb.MultiPolygon
}

type Result struct {
	Polygon orb.MultiPolygon
	Pairs   []Pair
	// Triple is only set for exactly three regions and is never part of Polygon.
	Triple orb.MultiPolygon
}

type Calculator struct {
	engine geom.Engine
	mode   Mode
}

func New(engine geom.Engine, mode Mode) *Calculator {
	if mode == "" {
		mode = ModePairs
	}
	return &Calculator{engine: engine, mode: mode}
}

func (c *Calculator) Mode() Mode { return c.mode }

// IntersectAll returns false when fewer than two regions are given or nothing overlaps.
func (c *Calculator) IntersectAll(regions []orb.MultiPolygon) (Result, bool) {
	if len(regions) < 2 {
		return Result{}, false
	}

	var res Result
	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			p := c.engine.Intersect(regions[i], regions[j])
			if geom.IsEmpty(p) {
				continue
			}
			res.Pairs = append(res.Pairs, Pair{I: i, J: j, Polygon: p})
		}
	}

	if len(regions) == 3 && len(res.Pairs) > 0 {
		if t := c.engine.Intersect(res.Pairs[0].Polygon, regions[2]); !geom.IsEmpty(t) {
			res.Triple = t
		}
	}

	switch c.mode {
	case ModeStrict:
		res.Polygon = c.strict(regions)
	default:
		res.Polygon = c.unionPairs(res.Pairs)
	}
	if geom.IsEmpty(res.Polygon) {
		return res, false
	}
	return res, true
}

func (c *Calculator) unionPairs(pairs []Pair) orb.MultiPolygon {
	switch len(pairs) {
	case 0:
		return nil
	case 1:
		return pairs[0].Polygon
	}
	acc := pairs[0].Polygon
	for _, p := range pairs[1:] {
		acc = c.engine.Union(acc, p.Polygon)
	}
	return acc
}

func (c *Calculator) strict(regions []orb.MultiPolygon) orb.MultiPolygon {
	acc := regions[0]
	for _, r := range regions[1:] {
		acc = c.engine.Intersect(acc, r)
		if geom.IsEmpty(acc) {
			return nil
		}
	}
	return acc
}
