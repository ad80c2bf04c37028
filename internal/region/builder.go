// Package region turns a line's stations into one walkable reachability polygon.
package region

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/turkim1/map-paris/internal/core/model"
	"github.com/turkim1/map-paris/internal/core/observability"
	"github.com/turkim1/map-paris/internal/geom"
	"github.com/turkim1/map-paris/internal/isochrone"
)

// ErrNotFound is returned whenever no region can be produced. Upstream causes stay
// reachable through errors.Is(err, isochrone.ErrUpstream).
var ErrNotFound = errors.New("region not found")

type Builder struct {
	logger    *slog.Logger
	provider  isochrone.Provider
	engine    geom.Engine
	batchSize int
}

func NewBuilder(logger *slog.Logger, provider isochrone.Provider, engine geom.Engine, batchSize int) *Builder {
	if batchSize < 1 || batchSize > isochrone.MaxLocations {
		batchSize = isochrone.MaxLocations
	}
	return &Builder{
		logger:    logger,
		provider:  provider,
		engine:    engine,
		batchSize: batchSize,
	}
}

// Chunk splits stations into consecutive batches of at most size, keeping order.
func Chunk(stations []model.Station, size int) [][]model.Station {
	if size < 1 {
		size = 1
	}
	out := make([][]model.Station, 0, (len(stations)+size-1)/size)
	for i := 0; i < len(stations); i += size {
		out = append(out, stations[i:min(i+size, len(stations))])
	}
	return out
}

// Build merges the isochrones of all stations and clips the result to boundary.
// Stations must already be inside boundary. Any failed chunk discards the whole region.
func (b *Builder) Build(ctx context.Context, stations []model.Station, walkMinutes int, boundary orb.MultiPolygon) (orb.MultiPolygon, error) {
	if len(stations) == 0 {
		observability.IncRegionBuild("no_stations")
		return nil, fmt.Errorf("%w: no stations", ErrNotFound)
	}
	if walkMinutes <= 0 {
		return nil, fmt.Errorf("%w: walk minutes must be positive, got %d", ErrNotFound, walkMinutes)
	}

	chunks := Chunk(stations, b.batchSize)
	merged, err := b.fold(ctx, chunks, walkMinutes)
	if err != nil {
		observability.IncRegionBuild("upstream")
		b.logger.WarnContext(ctx, "region build aborted",
			"line", string(stations[0].Line), "chunks", len(chunks), "err", err)
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	clipped := b.engine.Intersect(merged, boundary)
	if geom.IsEmpty(clipped) {
		observability.IncRegionBuild("empty")
		return nil, fmt.Errorf("%w: isochrones do not intersect the boundary", ErrNotFound)
	}
	observability.IncRegionBuild("ok")
	b.logger.DebugContext(ctx, "region built",
		"line", string(stations[0].Line),
		"stations", len(stations),
		"chunks", len(chunks),
		"parts", len(clipped))
	return clipped, nil
}

// fold requests chunks in order and unions each chunk polygon into the accumulator.
func (b *Builder) fold(ctx context.Context, chunks [][]model.Station, walkMinutes int) (orb.MultiPolygon, error) {
	var merged orb.MultiPolygon
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		pts := make([]orb.Point, 0, len(chunk))
		for _, s := range chunk {
			pts = append(pts, s.Point())
		}
		observability.IncIsochroneChunk()
		polys, err := b.provider.Isochrones(ctx, isochrone.NewRequest(pts, walkMinutes))
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		var chunkPoly orb.MultiPolygon
		for _, p := range polys {
			chunkPoly = b.engine.Union(chunkPoly, p)
		}
		merged = b.engine.Union(merged, chunkPoly)
	}
	return merged, nil
}
