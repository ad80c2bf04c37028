// Package proxy forwards isochrone requests to OpenRouteService, adding the API key.
package proxy

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

	"github.com/turkim1/map-paris/internal/cache/keys"
	"github.com/turkim1/map-paris/internal/core/observability"
)

const maxBodyBytes = 1 << 20

// Store caches upstream responses. redisstore.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type Options struct {
	ORSURL   string
	APIKey   string
	Profile  string
	Timeout  time.Duration
	Store    Store
	CacheTTL time.Duration
}

type Isochrones struct {
	logger  *slog.Logger
	client  *http.Client
	target  string
	apiKey  string
	profile string
	timeout time.Duration
	store   Store
	ttl     time.Duration
}

func New(logger *slog.Logger, client *http.Client, opts Options) (*Isochrones, error) {
	base, err := url.Parse(strings.TrimRight(opts.ORSURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ORS url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ORS url %q must be absolute", opts.ORSURL)
	}
	if opts.Profile == "" {
		opts.Profile = "foot-walking"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &Isochrones{
		logger:  logger,
		client:  client,
		target:  base.JoinPath("v2", "isochrones", opts.Profile).String(),
		apiKey:  opts.APIKey,
		profile: opts.Profile,
		timeout: opts.Timeout,
		store:   opts.Store,
		ttl:     opts.CacheTTL,
	}, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (p *Isochrones) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		p.logger.WarnContext(ctx, "isochrone proxy: read body", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch isochrone data")
		return
	}

	key := p.cacheKey(ctx, body)
	if cached, ok := p.lookup(ctx, key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cached)
		return
	}

	data, err := p.forward(ctx, body)
	if err != nil {
		p.logger.ErrorContext(ctx, "isochrone proxy: upstream failed", "profile", p.profile, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch isochrone data")
		return
	}
	p.save(ctx, key, data)

	w.Header().Set("Content-Type", "application/json")
	if key != "" {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

var errBadPayload = errors.New("upstream returned invalid JSON")

func (p *Isochrones) forward(ctx context.Context, body []byte) ([]byte, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, application/geo+json")

	start := time.Now()
	resp, err := p.client.Do(req)
	observability.ObserveUpstreamLatency("ors", time.Since(start).Seconds())
	if err != nil {
		reason := "transport"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		observability.IncUpstreamFailure("ors", reason)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		observability.IncUpstreamFailure("ors", "status")
		return nil, fmt.Errorf("OpenRouteService error: %d %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.IncUpstreamFailure("ors", "read")
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !json.Valid(data) {
		observability.IncUpstreamFailure("ors", "decode")
		return nil, errBadPayload
	}
	return data, nil
}

// cacheKey returns "" when caching is off or the body is not JSON.
func (p *Isochrones) cacheKey(ctx context.Context, body []byte) string {
	if p.store == nil {
		return ""
	}
	key, err := keys.IsochroneKey(p.profile, body)
	if err != nil {
		p.logger.DebugContext(ctx, "isochrone proxy: body not cacheable", "err", err)
		observability.IncProxyCache("bypass")
		return ""
	}
	return key
}

func (p *Isochrones) lookup(ctx context.Context, key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}
	val, ok, err := p.store.Get(ctx, key)
	switch {
	case err != nil:
		p.logger.WarnContext(ctx, "isochrone proxy: cache get failed", "key", key, "err", err)
		observability.IncProxyCache("error")
		return nil, false
	case !ok:
		observability.IncProxyCache("miss")
		return nil, false
	default:
		observability.IncProxyCache("hit")
		return val, true
	}
}

func (p *Isochrones) save(ctx context.Context, key string, data []byte) {
	if key == "" {
		return
	}
	if err := p.store.Set(ctx, key, data, p.ttl); err != nil {
		p.logger.WarnContext(ctx, "isochrone proxy: cache set failed", "key", key, "err", err)
		observability.IncProxyCache("error")
	}
}
