package main

import (
	"context"
	"fmt"
	goruntime "runtime"

	"himawari-desktop/internal/analytics"
	"himawari-desktop/internal/cache"
	"himawari-desktop/internal/config"
	"himawari-desktop/internal/handlers/archiveserver"
	"himawari-desktop/internal/himawari"
	"himawari-desktop/internal/imagery"
	"himawari-desktop/internal/logger"
	"himawari-desktop/internal/metrics"
	"himawari-desktop/internal/pipeline"
	"himawari-desktop/internal/publish"
	"himawari-desktop/internal/ratelimit"
	"himawari-desktop/internal/telemetry"
	"himawari-desktop/internal/wallpaper"

	"github.com/rs/zerolog"
)

// AppVersion is stamped at build time with -ldflags "-X main.AppVersion=..."
var AppVersion = "dev"

// App wires every component from one immutable configuration
type App struct {
	cfg          *config.Config
	settingsPath string
	log          zerolog.Logger

	metrics    *metrics.Recorder
	rateLimits *ratelimit.Handler
	tracker    *analytics.Tracker
	janitor    *cache.Janitor
	publisher  *publish.Publisher

	closeLog          func() error
	shutdownTelemetry func(context.Context) error
}

// NewApp loads settings and initialises logging, telemetry and shared collaborators
func NewApp(ctx context.Context, settingsPath string) (*App, error) {
	if settingsPath == "" {
		settingsPath = config.GetSettingsPath()
	}

	cfg, err := config.Load(ctx, settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	logFile, err := logger.Init(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.Component("app")
	log.Info().Str("settings", settingsPath).Str("version", AppVersion).Msg("settings loaded")

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialise tracing, continuing without it")
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	rec := metrics.New()

	a := &App{
		cfg:               cfg,
		settingsPath:      settingsPath,
		log:               log,
		metrics:           rec,
		rateLimits:        ratelimit.NewHandler(logger.Component("ratelimit")),
		tracker:           analytics.New(cfg.Telemetry.PostHogKey, cfg.Telemetry.PostHogHost, config.GetDataDir(), logger.Component("analytics")),
		closeLog:          logFile.Close,
		shutdownTelemetry: shutdownTelemetry,
	}

	a.watchRateLimits()

	janitorCfg := cache.DefaultConfig(cfg.Archive.ScratchDir, cfg.Archive.Root)
	janitorCfg.GridSize = cfg.Provider.GridSize
	janitorCfg.RetentionDays = cfg.Archive.RetentionDays
	a.janitor = cache.NewJanitor(*janitorCfg, rec, logger.Component("janitor"))

	if cfg.Publish.Bucket != "" {
		pub, err := publish.New(ctx, publish.Config{
			Bucket:    cfg.Publish.Bucket,
			Prefix:    cfg.Publish.Prefix,
			Region:    cfg.Publish.Region,
			Endpoint:  cfg.Publish.Endpoint,
			AccessKey: cfg.Publish.AccessKey,
			SecretKey: cfg.Publish.SecretKey,
		}, logger.Component("publish"))
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialise publisher, snapshots stay local")
		} else {
			a.publisher = pub
		}
	}

	a.TrackEvent(analytics.EventAppStarted, map[string]interface{}{
		"version": AppVersion,
		"go":      goruntime.Version(),
	})
	return a, nil
}

// Shutdown flushes analytics and traces and closes the log file
func (a *App) Shutdown(ctx context.Context) {
	a.tracker.Close()
	if err := a.shutdownTelemetry(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to flush traces")
	}
	a.closeLog()
}

// TrackEvent sends an event to PostHog
func (a *App) TrackEvent(event string, props map[string]interface{}) {
	a.tracker.Track(event, props)
}

// NewDriver builds the snapshot pipeline. onComposed may be nil.
func (a *App) NewDriver(onComposed func(context.Context, pipeline.Result)) *pipeline.Driver {
	cfg := a.cfg

	client := himawari.NewClient(himawari.ClientConfig{
		URLTemplate: cfg.Provider.TileURLTemplate,
		ScratchDir:  cfg.Archive.ScratchDir,
		Timeout:     cfg.Provider.FetchTimeout,
		UserAgent:   cfg.Provider.UserAgent,
	}, a.rateLimits)

	assembler := imagery.NewAssembler(client, imagery.Config{
		GridSize:    cfg.Provider.GridSize,
		TileSize:    cfg.Provider.TileSize,
		Workers:     cfg.Provider.Workers,
		JPEGQuality: cfg.Archive.JPEGQuality,
	}, a.metrics, logger.Component("assembler"))

	opts := pipeline.Options{
		Assembler:  assembler,
		Janitor:    a.janitor,
		Tracker:    a.tracker,
		Metrics:    a.metrics,
		OnComposed: onComposed,
	}
	if a.publisher != nil {
		opts.Publisher = a.publisher
	}

	return pipeline.NewDriver(pipeline.Config{
		ArchiveRoot:      cfg.Archive.Root,
		PublicationDelay: cfg.Provider.PublicationDelay,
		FloorInterval:    cfg.Provider.FloorInterval,
		UpdateInterval:   cfg.Schedule.UpdateInterval,
	}, opts, logger.Component("pipeline"))
}

// NewServer builds the archive server. Close it when done.
func (a *App) NewServer() *archiveserver.Server {
	return archiveserver.NewServer(archiveserver.Options{
		ArchiveRoot:        a.cfg.Archive.Root,
		BaseURL:            a.cfg.Server.BaseURL,
		AllowedOrigins:     a.cfg.Server.AllowedOrigins,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
		Stats:              a.janitor,
		RateLimits:         a.rateLimits,
		Metrics:            a.metrics,
	}, logger.Component("archiveserver"))
}

// NewWallpaperClient builds the desktop wallpaper client with the platform setter
func (a *App) NewWallpaperClient() *wallpaper.Client {
	return wallpaper.NewClient(wallpaper.Config{
		APIURL:          a.cfg.Wallpaper.APIURL,
		ScreenWidth:     a.cfg.Wallpaper.ScreenWidth,
		ScreenHeight:    a.cfg.Wallpaper.ScreenHeight,
		DownloadFile:    a.cfg.Wallpaper.DownloadFile,
		OutputFile:      a.cfg.Wallpaper.OutputFile,
		DownloadTimeout: a.cfg.Wallpaper.DownloadTimeout,
		UserAgent:       a.cfg.Provider.UserAgent,
	}, wallpaper.NewSetter(), a.tracker, logger.Component("wallpaper"))
}
