package geom

import (
	"math"

	polyclip "github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Polyclip implements Engine with the Martinez-Rueda clipper.
type Polyclip struct{}

func NewPolyclip() *Polyclip { return &Polyclip{} }

func (e *Polyclip) Union(a, b orb.MultiPolygon) orb.MultiPolygon {
	switch {
	case IsEmpty(a):
		return b.Clone()
	case IsEmpty(b):
		return a.Clone()
	}
	return fromPolyclip(toPolyclip(a).Construct(polyclip.UNION, toPolyclip(b)))
}

func (e *Polyclip) Intersect(a, b orb.MultiPolygon) orb.MultiPolygon {
	if IsEmpty(a) || IsEmpty(b) {
		return nil
	}
	if !a.Bound().Intersects(b.Bound()) {
		return nil
	}
	return fromPolyclip(toPolyclip(a).Construct(polyclip.INTERSECTION, toPolyclip(b)))
}

// polyclip contours are implicitly closed, so the repeated closing vertex is dropped.
func toPolyclip(mp orb.MultiPolygon) polyclip.Polygon {
	out := make(polyclip.Polygon, 0, len(mp))
	for _, poly := range mp {
		for _, ring := range poly {
			n := len(ring)
			if n > 1 && ring[0] == ring[n-1] {
				n--
			}
			if n < 3 {
				continue
			}
			c := make(polyclip.Contour, 0, n)
			for _, p := range ring[:n] {
				c = append(c, polyclip.Point{X: p[0], Y: p[1]})
			}
			out = append(out, c)
		}
	}
	return out
}

// fromPolyclip rebuilds shells and holes from a flat contour list. A contour nested
// inside an even number of others is a shell; odd nesting makes it a hole of the
// smallest shell that encloses it.
func fromPolyclip(p polyclip.Polygon) orb.MultiPolygon {
	rings := make([]orb.Ring, 0, len(p))
	areas := make([]float64, 0, len(p))
	for _, c := range p {
		if len(c) < 3 {
			continue
		}
		r := make(orb.Ring, 0, len(c)+1)
		for _, pt := range c {
			r = append(r, orb.Point{pt.X, pt.Y})
		}
		r = append(r, r[0])
		a := math.Abs(planar.Area(r))
		if a == 0 {
			continue
		}
		rings = append(rings, r)
		areas = append(areas, a)
	}
	if len(rings) == 0 {
		return nil
	}

	depth := make([]int, len(rings))
	parent := make([]int, len(rings))
	for i := range rings {
		parent[i] = -1
		probe := rings[i][0]
		for j := range rings {
			if i == j || areas[j] <= areas[i] {
				continue
			}
			if !rings[j].Bound().Contains(probe) || !planar.RingContains(rings[j], probe) {
				continue
			}
			depth[i]++
			if parent[i] == -1 || areas[j] < areas[parent[i]] {
				parent[i] = j
			}
		}
	}

	shellIdx := make(map[int]int)
	var out orb.MultiPolygon
	for i, r := range rings {
		if depth[i]%2 != 0 {
			continue
		}
		if r.Orientation() != orb.CCW {
			r.Reverse()
		}
		shellIdx[i] = len(out)
		out = append(out, orb.Polygon{r})
	}
	for i, r := range rings {
		if depth[i]%2 == 0 {
			continue
		}
		k, ok := shellIdx[parent[i]]
		if !ok {
			continue
		}
		if r.Orientation() != orb.CW {
			r.Reverse()
		}
		out[k] = append(out[k], r)
	}
	return out
}
