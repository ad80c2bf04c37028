// Package dataset loads the static station and city-boundary reference data.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/turkim1/map-paris/internal/core/model"
	"github.com/turkim1/map-paris/internal/geom"
)

// ErrDataLoad marks a failure to read or interpret the reference datasets.
var ErrDataLoad = errors.New("reference data load failed")

type Options struct {
	StationsPath string
	BoundaryPath string
	LineProperty string
	NameProperty string
	Engine       geom.Engine
}

type LineSummary struct {
	Line     model.LineID `json:"line"`
	Stations int          `json:"stations"`
}

// Dataset is read-only after construction.
type Dataset struct {
	boundary orb.MultiPolygon
	byLine   map[model.LineID][]model.Station
	lines    []model.LineID
	total    int
	outside  int
}

func Load(opts Options) (*Dataset, error) {
	if opts.Engine == nil {
		opts.Engine = geom.NewPolyclip()
	}
	braw, err := os.ReadFile(opts.BoundaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read boundary: %w", ErrDataLoad, err)
	}
	boundary, err := ParseBoundary(braw, opts.Engine)
	if err != nil {
		return nil, err
	}
	sraw, err := os.ReadFile(opts.StationsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read stations: %w", ErrDataLoad, err)
	}
	stations, err := ParseStations(sraw, opts.LineProperty, opts.NameProperty)
	if err != nil {
		return nil, err
	}
	return New(boundary, stations)
}

// New keeps only stations inside boundary and groups them by line.
func New(boundary orb.MultiPolygon, stations []model.Station) (*Dataset, error) {
	if geom.IsEmpty(boundary) {
		return nil, fmt.Errorf("%w: boundary has no polygonal geometry", ErrDataLoad)
	}
	d := &Dataset{
		boundary: boundary,
		byLine:   make(map[model.LineID][]model.Station),
	}
	for _, s := range stations {
		if !geom.Contains(boundary, s.Point()) {
			d.outside++
			continue
		}
		d.byLine[s.Line] = append(d.byLine[s.Line], s)
		d.total++
	}
	for l := range d.byLine {
		d.lines = append(d.lines, l)
	}
	slices.Sort(d.lines)
	return d, nil
}

// ParseBoundary accepts a FeatureCollection, a Feature or a bare geometry and
// unions every polygonal part.
func ParseBoundary(raw []byte, engine geom.Engine) (orb.MultiPolygon, error) {
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, fmt.Errorf("%w: parse boundary: %w", ErrDataLoad, err)
	}

	var parts []orb.Geometry
	switch hdr.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parse boundary collection: %w", ErrDataLoad, err)
		}
		for _, f := range fc.Features {
			parts = append(parts, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parse boundary feature: %w", ErrDataLoad, err)
		}
		parts = append(parts, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parse boundary geometry: %w", ErrDataLoad, err)
		}
		parts = append(parts, g.Geometry())
	}

	var out orb.MultiPolygon
	for _, g := range parts {
		mp, ok := geom.FromGeometry(g)
		if !ok {
			continue
		}
		if out == nil {
			out = mp
			continue
		}
		out = engine.Union(out, mp)
	}
	if geom.IsEmpty(out) {
		return nil, fmt.Errorf("%w: boundary has no polygonal geometry", ErrDataLoad)
	}
	return out, nil
}

// ParseStations reads point features; features with no line value are skipped.
func ParseStations(raw []byte, lineProp, nameProp string) ([]model.Station, error) {
	if lineProp == "" {
		lineProp = "res_com"
	}
	if nameProp == "" {
		nameProp = "nom_gares"
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse stations: %w", ErrDataLoad, err)
	}
	out := make([]model.Station, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := stationPoint(f.Geometry)
		if !ok {
			continue
		}
		line := strings.TrimSpace(f.Properties.MustString(lineProp, ""))
		if line == "" {
			continue
		}
		out = append(out, model.Station{
			Name: strings.TrimSpace(f.Properties.MustString(nameProp, "")),
			Lat:  pt.Lat(),
			Lon:  pt.Lon(),
			Line: model.LineID(line),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no stations with a %q property", ErrDataLoad, lineProp)
	}
	return out, nil
}

func stationPoint(g orb.Geometry) (orb.Point, bool) {
	switch t := g.(type) {
	case orb.Point:
		return t, true
	case orb.MultiPoint:
		if len(t) > 0 {
			return t[0], true
		}
	}
	return orb.Point{}, false
}

func (d *Dataset) Boundary() orb.MultiPolygon { return d.boundary }

func (d *Dataset) Lines() []model.LineID { return slices.Clone(d.lines) }

func (d *Dataset) HasLine(l model.LineID) bool {
	_, ok := d.byLine[l]
	return ok
}

// Stations returns the in-boundary stations of line in dataset order.
func (d *Dataset) Stations(l model.LineID) []model.Station {
	return slices.Clone(d.byLine[l])
}

func (d *Dataset) ByLine(lines []model.LineID) map[model.LineID][]model.Station {
	out := make(map[model.LineID][]model.Station, len(lines))
	for _, l := range lines {
		out[l] = d.Stations(l)
	}
	return out
}

func (d *Dataset) Summary() []LineSummary {
	out := make([]LineSummary, 0, len(d.lines))
	for _, l := range d.lines {
		out = append(out, LineSummary{Line: l, Stations: len(d.byLine[l])})
	}
	return out
}

func (d *Dataset) StationCount() int { return d.total }

// Outside counts stations dropped because they fall outside the boundary.
func (d *Dataset) Outside() int { return d.outside }

// Ready implements health.ReadinessReporter.
func (d *Dataset) Ready() (bool, int, int) {
	if d == nil {
		return false, 0, 0
	}
	return len(d.lines) > 0, len(d.lines), d.total
}
