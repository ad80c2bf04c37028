// Package stationindex answers nearest-station queries over an H3 cell index.
package stationindex

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	h3 "github.com/uber/h3-go/v4"

	"github.com/turkim1/map-paris/internal/core/model"
)

// DefaultRes cells have ~0.5 km edges, close to station spacing in a metro network.
const DefaultRes = 8

// beyond this many rings the scan falls back to brute force
const maxRings = 24

type Index struct {
	res   int
	cells map[h3.Cell][]model.Station
	all   []model.Station
}

func New(stations []model.Station, res int) (*Index, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	ix := &Index{
		res:   res,
		cells: make(map[h3.Cell][]model.Station, len(stations)),
		all:   stations,
	}
	for _, s := range stations {
		c, err := h3.LatLngToCell(h3.LatLng{Lat: s.Lat, Lng: s.Lon}, res)
		if err != nil {
			return nil, fmt.Errorf("h3 cell for station %q: %w", s.Name, err)
		}
		ix.cells[c] = append(ix.cells[c], s)
	}
	return ix, nil
}

func (ix *Index) Len() int { return len(ix.all) }

// Nearest returns the station closest to pt by great-circle distance, in metres.
func (ix *Index) Nearest(pt orb.Point) (model.Station, float64, bool) {
	if len(ix.all) == 0 {
		return model.Station{}, 0, false
	}
	origin, err := h3.LatLngToCell(h3.LatLng{Lat: pt.Lat(), Lng: pt.Lon()}, ix.res)
	if err != nil {
		return ix.linear(pt)
	}

	found := -1
	for k := 0; k <= maxRings; k++ {
		disk, err := h3.GridDisk(origin, k)
		if err != nil {
			return ix.linear(pt)
		}
		if ix.anyIn(disk) {
			found = k
			break
		}
	}
	if found < 0 {
		return ix.linear(pt)
	}

	// a hit in ring k bounds the answer; rings up to k+3+k/4 cover every closer station
	disk, err := h3.GridDisk(origin, found+3+found/4)
	if err != nil {
		return ix.linear(pt)
	}
	var (
		best  model.Station
		bestD = math.Inf(1)
	)
	for _, c := range disk {
		for _, s := range ix.cells[c] {
			if d := geo.DistanceHaversine(pt, s.Point()); d < bestD {
				best, bestD = s, d
			}
		}
	}
	return best, bestD, true
}

func (ix *Index) anyIn(cells []h3.Cell) bool {
	for _, c := range cells {
		if len(ix.cells[c]) > 0 {
			return true
		}
	}
	return false
}

func (ix *Index) linear(pt orb.Point) (model.Station, float64, bool) {
	return Linear(ix.all, pt)
}

// Linear is the brute-force reference used as a fallback.
func Linear(stations []model.Station, pt orb.Point) (model.Station, float64, bool) {
	var (
		best  model.Station
		bestD = math.Inf(1)
	)
	for _, s := range stations {
		if d := geo.DistanceHaversine(pt, s.Point()); d < bestD {
			best, bestD = s, d
		}
	}
	return best, bestD, len(stations) > 0
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// Set holds one index per line so each selected line gets its own nearest station.
type Set struct {
	lines []model.LineID
	byLn  map[model.LineID]*Index
}

func NewSet(stations map[model.LineID][]model.Station, lines []model.LineID, res int) (*Set, error) {
	s := &Set{lines: lines, byLn: make(map[model.LineID]*Index, len(lines))}
	for _, l := range lines {
		ix, err := New(stations[l], res)
		if err != nil {
			return nil, fmt.Errorf("index line %s: %w", l, err)
		}
		s.byLn[l] = ix
	}
	return s, nil
}

// Nearest lists, in line order, the closest station of every line that has stations.
func (s *Set) Nearest(pt orb.Point) []model.NearestStation {
	out := make([]model.NearestStation, 0, len(s.lines))
	for _, l := range s.lines {
		st, d, ok := s.byLn[l].Nearest(pt)
		if !ok {
			continue
		}
		out = append(out, model.NearestStation{
			Line:           l,
			Station:        st.Name,
			DistanceMeters: math.Round(d),
			Label:          model.NearestLabel(l, st.Name),
		})
	}
	return out
}
