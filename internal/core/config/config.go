package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DatasetCfg struct {
	StationsPath string
	BoundaryPath string
	LineProperty string
	NameProperty string
	NearestH3Res int
}

type IsochroneCfg struct {
	URL       string
	BatchSize int
}

// ProxyCfg configures the same-origin isochrone proxy that holds the provider key.
type ProxyCfg struct {
	Enabled   bool
	ORSURL    string
	ORSAPIKey string
	Profile   string
	Cache     string
	CacheTTL  time.Duration
	RedisAddr string
}

// ActivityCfg enables the Kafka activity stream when Brokers is non-empty.
type ActivityCfg struct {
	Brokers   []string
	Topic     string
	QueueSize int
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	AllowedOrigins  []string
	UpstreamTimeout time.Duration
	Dataset         DatasetCfg
	Isochrone       IsochroneCfg
	Proxy           ProxyCfg
	Activity        ActivityCfg
	OverpassURL     string
	OverpassTimeout int
	OverlapMode     string
	MaxLines        int
	MinWalkMinutes  int
	MaxWalkMinutes  int
	SessionMax      int
	SessionTTL      time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	addr := getenv("ADDR", ":8090")

	batch := getint("ISOCHRONE_BATCH_SIZE", 5)
	if batch < 1 {
		batch = 5
	}
	maxLines := getint("MAX_LINES", 3)
	if maxLines < 2 {
		maxLines = 2
	}
	minWalk := getint("WALK_MINUTES_MIN", 1)
	maxWalk := getint("WALK_MINUTES_MAX", 60)
	if minWalk < 1 {
		minWalk = 1
	}
	if maxWalk < minWalk {
		minWalk, maxWalk = 1, 60
	}
	res := getint("NEAREST_H3_RES", 8)
	if res < 0 || res > 15 {
		res = 8
	}

	return Config{
		Addr:            addr,
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		LogSampleN:      getint("LOG_SAMPLE_N", 0),
		AllowedOrigins:  splitList(getenv("ALLOWED_ORIGINS", "*")),
		UpstreamTimeout: getduration("UPSTREAM_TIMEOUT", 20*time.Second),
		Dataset: DatasetCfg{
			StationsPath: getenv("STATIONS_PATH", "data/emplacement-des-gares-idf.geojson"),
			BoundaryPath: getenv("BOUNDARY_PATH", "data/departement-75-paris.geojson"),
			LineProperty: getenv("STATIONS_LINE_PROPERTY", "res_com"),
			NameProperty: getenv("STATIONS_NAME_PROPERTY", "nom_gares"),
			NearestH3Res: res,
		},
		Isochrone: IsochroneCfg{
			URL:       getenv("ISOCHRONE_URL", "http://localhost"+listenPort(addr)+"/api/isochrones"),
			BatchSize: batch,
		},
		Proxy: ProxyCfg{
			Enabled:   getbool("PROXY_ENABLED", true),
			ORSURL:    strings.TrimRight(getenv("ORS_URL", "https://api.openrouteservice.org"), "/"),
			ORSAPIKey: os.Getenv("ORS_API_KEY"),
			Profile:   getenv("ORS_PROFILE", "foot-walking"),
			Cache:     strings.ToLower(getenv("PROXY_CACHE", "none")),
			CacheTTL:  getduration("PROXY_CACHE_TTL", 24*time.Hour),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
		},
		Activity: ActivityCfg{
			Brokers:   splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:     getenv("ACTIVITY_TOPIC", "overlap.activity"),
			QueueSize: getint("ACTIVITY_QUEUE_SIZE", 1024),
		},
		OverpassURL:     getenv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassTimeout: getint("OVERPASS_QUERY_TIMEOUT", 25),
		OverlapMode:     strings.ToLower(getenv("OVERLAP_MODE", "pairs")),
		MaxLines:        maxLines,
		MinWalkMinutes:  minWalk,
		MaxWalkMinutes:  maxWalk,
		SessionMax:      getint("SESSION_MAX", 1024),
		SessionTTL:      getduration("SESSION_TTL", 2*time.Hour),
	}
}

// ":8090" -> ":8090", "0.0.0.0:80" -> ":80"
func listenPort(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ":" + addr
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
