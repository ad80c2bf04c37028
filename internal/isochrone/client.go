// Package isochrone calls the travel-time polygon service through the same-origin proxy.
package isochrone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/turkim1/map-paris/internal/core/observability"
	"github.com/turkim1/map-paris/internal/geom"
)

// ErrUpstream covers non-2xx answers, transport errors, timeouts and malformed payloads.
var ErrUpstream = errors.New("isochrone upstream failure")

// MaxLocations is the provider limit of origins per request.
const MaxLocations = 5

type Request struct {
	Locations  [][2]float64 `json:"locations"`
	Range      []int        `json:"range"`
	RangeType  string       `json:"range_type"`
	Attributes []string     `json:"attributes,omitempty"`
}

// NewRequest builds a time isochrone request of walkMinutes around every point.
func NewRequest(points []orb.Point, walkMinutes int) Request {
	locs := make([][2]float64, 0, len(points))
	for _, p := range points {
		locs = append(locs, [2]float64{p.Lon(), p.Lat()})
	}
	return Request{
		Locations:  locs,
		Range:      []int{walkMinutes * 60},
		RangeType:  "time",
		Attributes: []string{"area"},
	}
}

type Provider interface {
	Isochrones(ctx context.Context, req Request) ([]orb.MultiPolygon, error)
}

type Client struct {
	logger   *slog.Logger
	client   *http.Client
	endpoint *url.URL
	timeout  time.Duration
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, endpoint string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse isochrone url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("isochrone url %q must be absolute", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		logger:   logger,
		client:   client,
		endpoint: u,
		timeout:  timeout,
		startNow: time.Now,
	}, nil
}

// Isochrones returns one polygon per feature of the provider response, in response order.
func (c *Client) Isochrones(ctx context.Context, req Request) ([]orb.MultiPolygon, error) {
	if len(req.Locations) == 0 {
		return nil, nil
	}
	if len(req.Locations) > MaxLocations {
		return nil, fmt.Errorf("isochrone request has %d locations, limit is %d", len(req.Locations), MaxLocations)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode isochrone request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/geo+json, application/json")

	start := c.startNow()
	resp, err := c.client.Do(hreq)
	observability.ObserveUpstreamLatency("isochrone", time.Since(start).Seconds())
	if err != nil {
		reason := "transport"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		observability.IncUpstreamFailure("isochrone", reason)
		return nil, fmt.Errorf("%w: do request: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		observability.IncUpstreamFailure("isochrone", "status")
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, bytes.TrimSpace(b))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.IncUpstreamFailure("isochrone", "read")
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	polys, err := decode(raw)
	if err != nil {
		observability.IncUpstreamFailure("isochrone", "decode")
		return nil, err
	}
	if len(polys) != len(req.Locations) {
		c.logger.WarnContext(ctx, "isochrone feature count differs from locations",
			"features", len(polys), "locations", len(req.Locations))
	}
	return polys, nil
}

func decode(raw []byte) ([]orb.MultiPolygon, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode feature collection: %w", ErrUpstream, err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%w: empty feature collection", ErrUpstream)
	}
	out := make([]orb.MultiPolygon, 0, len(fc.Features))
	for i, f := range fc.Features {
		mp, ok := geom.FromGeometry(f.Geometry)
		if !ok {
			return nil, fmt.Errorf("%w: feature %d is %T, want polygon", ErrUpstream, i, f.Geometry)
		}
		out = append(out, mp)
	}
	return out, nil
}
