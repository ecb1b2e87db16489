package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. HIMAWARI_PROVIDER_GRID_SIZE
const EnvPrefix = "HIMAWARI_"

var (
	ErrConfigFileUnreadable     = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable = errors.New("config file is unmarshallable")
	ErrTileURLTemplateMissing   = errors.New("provider.tileURLTemplate is required")
	ErrGridSizeInvalid          = errors.New("provider.gridSize must be at least 1")
	ErrTileSizeInvalid          = errors.New("provider.tileSize must be at least 1")
	ErrFloorIntervalInvalid     = errors.New("provider.floorInterval must be positive")
	ErrFetchTimeoutInvalid      = errors.New("provider.fetchTimeout must be positive")
	ErrArchiveRootMissing       = errors.New("archive.root is required")
	ErrScratchDirMissing        = errors.New("archive.scratchDir is required")
	ErrRetentionInvalid         = errors.New("archive.retentionDays must be at least 1")
	ErrJPEGQualityInvalid       = errors.New("archive.jpegQuality must be within [1, 100]")
	ErrUpdateIntervalInvalid    = errors.New("schedule.updateInterval must be positive")
	ErrScreenSizeInvalid        = errors.New("wallpaper.screenWidth and screenHeight must be positive")
)

// Provider describes the upstream tile service
type Provider struct {
	TileURLTemplate  string        `yaml:"tileURLTemplate" env:"TILE_URL_TEMPLATE"`
	GridSize         int           `yaml:"gridSize" env:"GRID_SIZE"`
	TileSize         int           `yaml:"tileSize" env:"TILE_SIZE"`
	PublicationDelay time.Duration `yaml:"publicationDelay" env:"PUBLICATION_DELAY"`
	FloorInterval    time.Duration `yaml:"floorInterval" env:"FLOOR_INTERVAL"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout" env:"FETCH_TIMEOUT"`
	UserAgent        string        `yaml:"userAgent" env:"USER_AGENT"`
	Workers          int           `yaml:"workers" env:"WORKERS"` // 1 = sequential
}

// Archive describes where snapshots and scratch tiles live
type Archive struct {
	Root          string `yaml:"root" env:"ROOT"`
	ScratchDir    string `yaml:"scratchDir" env:"SCRATCH_DIR"`
	RetentionDays int    `yaml:"retentionDays" env:"RETENTION_DAYS"`
	JPEGQuality   int    `yaml:"jpegQuality" env:"JPEG_QUALITY"`
}

// Schedule controls the always-on loops
type Schedule struct {
	UpdateInterval time.Duration `yaml:"updateInterval" env:"UPDATE_INTERVAL"`
}

// Server configures the latest-image API and archive viewer
type Server struct {
	Addr               string   `yaml:"addr" env:"ADDR"`
	BaseURL            string   `yaml:"baseURL" env:"BASE_URL"`
	AllowedOrigins     []string `yaml:"allowedOrigins" env:"ALLOWED_ORIGINS"`
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute" env:"RATE_LIMIT_PER_MINUTE"`
}

// Wallpaper configures the desktop client
type Wallpaper struct {
	APIURL          string        `yaml:"apiURL" env:"API_URL"`
	ScreenWidth     int           `yaml:"screenWidth" env:"SCREEN_WIDTH"`
	ScreenHeight    int           `yaml:"screenHeight" env:"SCREEN_HEIGHT"`
	DownloadFile    string        `yaml:"downloadFile" env:"DOWNLOAD_FILE"`
	OutputFile      string        `yaml:"outputFile" env:"OUTPUT_FILE"`
	DownloadTimeout time.Duration `yaml:"downloadTimeout" env:"DOWNLOAD_TIMEOUT"`
}

// Publish configures the optional S3 mirror of composed snapshots
type Publish struct {
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	Prefix    string `yaml:"prefix" env:"PREFIX"`
	Region    string `yaml:"region" env:"REGION"`
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"accessKey" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secretKey" env:"SECRET_KEY"`
}

// Telemetry configures tracing and product analytics
type Telemetry struct {
	ServiceName  string `yaml:"serviceName" env:"SERVICE_NAME"`
	OTLPEndpoint string `yaml:"otlpEndpoint" env:"OTLP_ENDPOINT"`
	PostHogKey   string `yaml:"posthogKey" env:"POSTHOG_KEY"`
	PostHogHost  string `yaml:"posthogHost" env:"POSTHOG_HOST"`
}

// Log configures the log sink
type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`
	File   string `yaml:"file" env:"FILE"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

// Config is the immutable runtime configuration handed to every component at construction
type Config struct {
	Provider  Provider  `yaml:"provider" env:",prefix=PROVIDER_"`
	Archive   Archive   `yaml:"archive" env:",prefix=ARCHIVE_"`
	Schedule  Schedule  `yaml:"schedule" env:",prefix=SCHEDULE_"`
	Server    Server    `yaml:"server" env:",prefix=SERVER_"`
	Wallpaper Wallpaper `yaml:"wallpaper" env:",prefix=WALLPAPER_"`
	Publish   Publish   `yaml:"publish" env:",prefix=PUBLISH_"`
	Telemetry Telemetry `yaml:"telemetry" env:",prefix=TELEMETRY_"`
	Log       Log       `yaml:"log" env:",prefix=LOG_"`
}

// Default returns the reference deployment: a 4x4 grid of 550px tiles, 30 minute delay, 10 minute floor
func Default() *Config {
	dataDir := GetDataDir()

	return &Config{
		Provider: Provider{
			TileURLTemplate:  "https://himawari.asia/img/D531106/4d/550/{ts}_{col}_{row}.png",
			GridSize:         4,
			TileSize:         550,
			PublicationDelay: 30 * time.Minute,
			FloorInterval:    10 * time.Minute,
			FetchTimeout:     10 * time.Second,
			UserAgent:        "himawari-desktop/1.0",
			Workers:          1,
		},
		Archive: Archive{
			Root:          filepath.Join(dataDir, "himawari"),
			ScratchDir:    filepath.Join(dataDir, "scratch"),
			RetentionDays: 1,
			JPEGQuality:   90,
		},
		Schedule: Schedule{
			UpdateInterval: 15 * time.Minute,
		},
		Server: Server{
			Addr:               ":8080",
			BaseURL:            "http://localhost:8080/",
			AllowedOrigins:     []string{"*"},
			RateLimitPerMinute: 120,
		},
		Wallpaper: Wallpaper{
			APIURL:          "http://localhost:8080/api/latest",
			ScreenWidth:     1920,
			ScreenHeight:    1080,
			DownloadFile:    filepath.Join(dataDir, "earth_latest.jpg"),
			OutputFile:      filepath.Join(dataDir, "wallpaper.jpg"),
			DownloadTimeout: 20 * time.Second,
		},
		Publish: Publish{
			Prefix: "himawari",
			Region: "us-east-1",
		},
		Telemetry: Telemetry{
			ServiceName: "himawari-desktop",
		},
		Log: Log{
			Level: "info",
			File:  filepath.Join(dataDir, "log.txt"),
		},
	}
}

// Load reads the settings file at path (missing file means defaults) and applies
// HIMAWARI_* environment overrides on top.
func Load(ctx context.Context, path string) (*Config, error) {
	return LoadWith(ctx, path, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit environment source
func LoadWith(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults only
		case err != nil:
			return nil, fmt.Errorf("%w: %v", ErrConfigFileUnreadable, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfigFileUnmarshallable, err)
			}
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         envconfig.PrefixLookuper(EnvPrefix, lookuper),
		DefaultOverwrite: true,
	}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every pipeline component relies on
func (c *Config) Validate() error {
	if c.Provider.TileURLTemplate == "" {
		return ErrTileURLTemplateMissing
	}
	if c.Provider.GridSize < 1 {
		return ErrGridSizeInvalid
	}
	if c.Provider.TileSize < 1 {
		return ErrTileSizeInvalid
	}
	if c.Provider.FloorInterval <= 0 {
		return ErrFloorIntervalInvalid
	}
	if c.Provider.FetchTimeout <= 0 {
		return ErrFetchTimeoutInvalid
	}
	if c.Archive.Root == "" {
		return ErrArchiveRootMissing
	}
	if c.Archive.ScratchDir == "" {
		return ErrScratchDirMissing
	}
	if c.Archive.RetentionDays < 1 {
		return ErrRetentionInvalid
	}
	if c.Archive.JPEGQuality < 1 || c.Archive.JPEGQuality > 100 {
		return ErrJPEGQualityInvalid
	}
	if c.Schedule.UpdateInterval <= 0 {
		return ErrUpdateIntervalInvalid
	}
	if c.Wallpaper.ScreenWidth <= 0 || c.Wallpaper.ScreenHeight <= 0 {
		return ErrScreenSizeInvalid
	}
	if c.Provider.Workers < 1 {
		c.Provider.Workers = 1
	}
	return nil
}

// Save writes the configuration as YAML, creating the parent directory
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
