package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Addr != ":8090" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.Isochrone.BatchSize != 5 {
		t.Fatalf("batch=%d want 5", cfg.Isochrone.BatchSize)
	}
	if cfg.Isochrone.URL != "http://localhost:8090/api/isochrones" {
		t.Fatalf("isochrone url=%q", cfg.Isochrone.URL)
	}
	if cfg.MaxLines != 3 || cfg.OverlapMode != "pairs" {
		t.Fatalf("maxLines=%d mode=%q", cfg.MaxLines, cfg.OverlapMode)
	}
	if cfg.UpstreamTimeout != 20*time.Second {
		t.Fatalf("timeout=%v", cfg.UpstreamTimeout)
	}
	if len(cfg.Activity.Brokers) != 0 || cfg.Activity.Topic != "overlap.activity" {
		t.Fatalf("activity=%+v", cfg.Activity)
	}
}

func TestFromEnv_OverridesAndClamps(t *testing.T) {
	t.Setenv("ADDR", "0.0.0.0:9000")
	t.Setenv("ISOCHRONE_BATCH_SIZE", "0")
	t.Setenv("MAX_LINES", "1")
	t.Setenv("NEAREST_H3_RES", "22")
	t.Setenv("ALLOWED_ORIGINS", " http://a.test , ,http://b.test")
	t.Setenv("PROXY_CACHE", "Redis")
	t.Setenv("ORS_URL", "http://ors.test/")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := FromEnv()
	if cfg.Isochrone.URL != "http://localhost:9000/api/isochrones" {
		t.Fatalf("isochrone url=%q", cfg.Isochrone.URL)
	}
	if cfg.Isochrone.BatchSize != 5 {
		t.Fatalf("invalid batch size must fall back to 5, got %d", cfg.Isochrone.BatchSize)
	}
	if cfg.MaxLines != 2 {
		t.Fatalf("max lines clamp=%d want 2", cfg.MaxLines)
	}
	if cfg.Dataset.NearestH3Res != 8 {
		t.Fatalf("h3 res=%d want 8", cfg.Dataset.NearestH3Res)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("origins=%v", cfg.AllowedOrigins)
	}
	if cfg.Proxy.Cache != "redis" || cfg.Proxy.ORSURL != "http://ors.test" {
		t.Fatalf("proxy=%+v", cfg.Proxy)
	}
	if cfg.UpstreamTimeout != 3*time.Second {
		t.Fatalf("timeout=%v", cfg.UpstreamTimeout)
	}
	if len(cfg.Activity.Brokers) != 2 || cfg.Activity.Brokers[0] != "k1:9092" {
		t.Fatalf("brokers=%v", cfg.Activity.Brokers)
	}
}
