package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turkim1/map-paris/internal/activity"
	"github.com/turkim1/map-paris/internal/cache/redisstore"
	"github.com/turkim1/map-paris/internal/core/config"
	"github.com/turkim1/map-paris/internal/core/httpclient"
	"github.com/turkim1/map-paris/internal/core/observability"
	"github.com/turkim1/map-paris/internal/core/router"
	"github.com/turkim1/map-paris/internal/core/server"
	"github.com/turkim1/map-paris/internal/dataset"
	"github.com/turkim1/map-paris/internal/geom"
	"github.com/turkim1/map-paris/internal/isochrone"
	"github.com/turkim1/map-paris/internal/logger"
	"github.com/turkim1/map-paris/internal/overlap"
	"github.com/turkim1/map-paris/internal/places"
	"github.com/turkim1/map-paris/internal/proxy"
	"github.com/turkim1/map-paris/internal/region"
	"github.com/turkim1/map-paris/internal/session"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	modeFlag := flag.String("overlap-mode", "", "pairs or strict (overrides OVERLAP_MODE)")
	flag.Parse()

	cfg := config.Load()
	if *modeFlag != "" {
		cfg.OverlapMode = *modeFlag
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "overlap-server",
		Version:   Version,
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)

	mode, err := overlap.ParseMode(cfg.OverlapMode)
	if err != nil {
		appLog.Error("invalid configuration", "err", err)
		return 1
	}

	engine := geom.NewPolyclip()
	ds, err := dataset.Load(dataset.Options{
		StationsPath: cfg.Dataset.StationsPath,
		BoundaryPath: cfg.Dataset.BoundaryPath,
		LineProperty: cfg.Dataset.LineProperty,
		NameProperty: cfg.Dataset.NameProperty,
		Engine:       engine,
	})
	if err != nil {
		if errors.Is(err, dataset.ErrDataLoad) {
			appLog.Error("cannot start without reference data", "err", err,
				"stations", cfg.Dataset.StationsPath, "boundary", cfg.Dataset.BoundaryPath)
		} else {
			appLog.Error("dataset setup failed", "err", err)
		}
		return 1
	}
	appLog.Info("reference data loaded",
		"lines", len(ds.Lines()),
		"stations", ds.StationCount(),
		"outside_boundary", ds.Outside())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.NewOutbound(cfg.UpstreamTimeout)

	var isoProxy http.Handler
	if cfg.Proxy.Enabled {
		p, closeStore, err := newProxy(ctx, appLog, httpClient, cfg)
		if err != nil {
			appLog.Error("isochrone proxy setup failed", "err", err)
			return 1
		}
		defer closeStore()
		isoProxy = p
	}

	iso, err := isochrone.New(appLog, httpClient, cfg.Isochrone.URL, cfg.UpstreamTimeout)
	if err != nil {
		appLog.Error("isochrone client setup failed", "err", err)
		return 1
	}
	overpass, err := places.NewOverpass(appLog, httpClient, cfg.OverpassURL, cfg.OverpassTimeout, cfg.UpstreamTimeout)
	if err != nil {
		appLog.Error("overpass client setup failed", "err", err)
		return 1
	}

	core := session.NewCore(appLog, ds,
		region.NewBuilder(appLog, iso, engine, cfg.Isochrone.BatchSize),
		overlap.New(engine, mode),
		places.NewFinder(appLog, overpass, cfg.Dataset.NearestH3Res),
		session.Limits{
			MaxLines:       cfg.MaxLines,
			MinWalkMinutes: cfg.MinWalkMinutes,
			MaxWalkMinutes: cfg.MaxWalkMinutes,
		})

	if len(cfg.Activity.Brokers) > 0 {
		pub, err := activity.NewPublisher(appLog, cfg.Activity.Brokers, cfg.Activity.Topic, cfg.Activity.QueueSize)
		if err != nil {
			// activity events are best effort
			appLog.Warn("activity stream disabled", "brokers", cfg.Activity.Brokers, "err", err)
		} else {
			core.SetEvents(pub)
			defer func() {
				if err := pub.Close(); err != nil {
					appLog.Warn("activity publisher close", "err", err)
				}
			}()
			appLog.Info("activity stream enabled", "topic", cfg.Activity.Topic)
		}
	}

	handler := router.New(router.Deps{
		Logger:         appLog,
		Lines:          ds,
		Sessions:       session.NewRegistry(core, cfg.SessionMax, cfg.SessionTTL),
		Readiness:      ds,
		Isochrones:     isoProxy,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	appLog.Info("starting overlap-server",
		"addr", cfg.Addr,
		"version", Version,
		"overlap_mode", string(mode),
		"isochrone_url", cfg.Isochrone.URL,
		"proxy", cfg.Proxy.Enabled)

	// a generation may issue several sequential upstream calls per line
	writeTimeout := time.Duration(cfg.MaxLines*4)*cfg.UpstreamTimeout + 10*time.Second
	if err := server.Run(ctx, server.Config{Addr: cfg.Addr, WriteTimeout: writeTimeout}, appLog, handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func newProxy(ctx context.Context, l *slog.Logger, client *http.Client, cfg config.Config) (http.Handler, func(), error) {
	if cfg.Proxy.ORSAPIKey == "" {
		l.Warn("ORS_API_KEY is empty; upstream isochrone calls will be rejected")
	}
	opts := proxy.Options{
		ORSURL:   cfg.Proxy.ORSURL,
		APIKey:   cfg.Proxy.ORSAPIKey,
		Profile:  cfg.Proxy.Profile,
		Timeout:  cfg.UpstreamTimeout,
		CacheTTL: cfg.Proxy.CacheTTL,
	}
	closeStore := func() {}
	if cfg.Proxy.Cache == "redis" {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		rc, err := redisstore.New(pingCtx, cfg.Proxy.RedisAddr)
		cancel()
		if err != nil {
			// the proxy still works uncached
			l.Warn("proxy cache disabled", "redis", cfg.Proxy.RedisAddr, "err", err)
		} else {
			opts.Store = rc
			closeStore = func() { _ = rc.Close() }
			l.Info("proxy cache enabled", "redis", cfg.Proxy.RedisAddr, "ttl", cfg.Proxy.CacheTTL)
		}
	}
	p, err := proxy.New(l, client, opts)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return p, closeStore, nil
}
