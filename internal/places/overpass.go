// Package places looks up points of interest inside a query region.
package places

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
	"strings"
	"time"

	"github.com/turkim1/map-paris/internal/core/model"
	"github.com/turkim1/map-paris/internal/core/observability"
)

var ErrUpstream = errors.New("places upstream failure")

// Element is an Overpass node as returned by "out body".
type Element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
}

type Source interface {
	Amenities(ctx context.Context, bbox model.BBox, category string) ([]Element, error)
}

type OverpassClient struct {
	logger       *slog.Logger
	client       *http.Client
	endpoint     *url.URL
	queryTimeout int
	timeout      time.Duration
	startNow     func() time.Time // for tests
}

func NewOverpass(logger *slog.Logger, client *http.Client, endpoint string, queryTimeout int, timeout time.Duration) (*OverpassClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse overpass url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("overpass url %q must be absolute", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if queryTimeout <= 0 {
		queryTimeout = 25
	}
	return &OverpassClient{
		logger:       logger,
		client:       client,
		endpoint:     u,
		queryTimeout: queryTimeout,
		timeout:      timeout,
		startNow:     time.Now,
	}, nil
}

// BuildQuery renders the Overpass QL for amenity nodes within bbox.
// category must already be validated with ValidCategory.
func BuildQuery(bbox model.BBox, category string, timeoutSec int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n", timeoutSec)
	b.WriteString("(\n")
	fmt.Fprintf(&b, "  node[\"amenity\"=\"%s\"](%s);\n", category, bbox.OverpassString())
	b.WriteString(");\nout body;\n")
	return b.String()
}

func (c *OverpassClient) Amenities(ctx context.Context, bbox model.BBox, category string) ([]Element, error) {
	if !ValidCategory(category) {
		return nil, fmt.Errorf("invalid category %q", category)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	form := url.Values{"data": {BuildQuery(bbox, category, c.queryTimeout)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := c.startNow()
	resp, err := c.client.Do(req)
	observability.ObserveUpstreamLatency("overpass", time.Since(start).Seconds())
	if err != nil {
		reason := "transport"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		observability.IncUpstreamFailure("overpass", reason)
		return nil, fmt.Errorf("%w: do request: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		observability.IncUpstreamFailure("overpass", "status")
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, bytes.TrimSpace(b))
	}

	var payload struct {
		Elements []Element `json:"elements"`
		Remark   string    `json:"remark"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		observability.IncUpstreamFailure("overpass", "decode")
		return nil, fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}
	if payload.Remark != "" {
		c.logger.WarnContext(ctx, "overpass remark", "remark", payload.Remark)
	}
	return payload.Elements, nil
}
