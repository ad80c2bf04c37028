// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/paulmach/orb"
)

// LineID identifies a transit line, e.g. "METRO 1" or "RER A".
type LineID string

type Station struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Line LineID  `json:"line"`
}

func (s Station) Point() orb.Point { return orb.Point{s.Lon, s.Lat} }

type NearestStation struct {
	Line           LineID  `json:"line"`
	Station        string  `json:"station"`
	DistanceMeters float64 `json:"distance_m"`
	Label          string  `json:"label"`
}

// NearestLabel renders the popup line shown for a place.
func NearestLabel(line LineID, station string) string {
	return fmt.Sprintf("Nearest station to %s: %s", line, station)
}

type Place struct {
	Name            string           `json:"name"`
	Category        string           `json:"category"`
	Lat             float64          `json:"lat"`
	Lon             float64          `json:"lon"`
	Address         string           `json:"address"`
	OpeningHours    *string          `json:"opening_hours"`
	NearestStations []NearestStation `json:"nearest_stations,omitempty"`
}

// BBox in EPSG:4326 degrees.
type BBox struct {
	West, South float64
	East, North float64
}

func BBoxFromBound(b orb.Bound) BBox {
	return BBox{West: b.Min[0], South: b.Min[1], East: b.Max[0], North: b.Max[1]}
}

// Overpass ordering: south,west,north,east
func (b BBox) OverpassString() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.South, b.West, b.North, b.East)
}

// Selection is the set of lines chosen by a user, kept in selection order.
type Selection []LineID

// Normalize trims ids, drops empties and duplicates, keeping first occurrence order.
func (s Selection) Normalize() Selection {
	out := make(Selection, 0, len(s))
	seen := make(map[LineID]struct{}, len(s))
	for _, l := range s {
		l = LineID(strings.TrimSpace(string(l)))
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// SameSet reports whether both selections contain the same lines, ignoring order.
func (s Selection) SameSet(o Selection) bool {
	a, b := s.sorted(), o.sorted()
	return slices.Equal(a, b)
}

func (s Selection) sorted() []LineID {
	cp := slices.Clone(s.Normalize())
	slices.Sort(cp)
	return cp
}
