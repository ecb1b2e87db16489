// Package wallpaper downloads the latest snapshot, fits it to the screen and applies it.
package wallpaper

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"himawari-desktop/internal/analytics"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config configures the wallpaper client
type Config struct {
	APIURL          string
	ScreenWidth     int
	ScreenHeight    int
	DownloadFile    string // raw download, e.g. earth_latest.jpg
	OutputFile      string // fitted image handed to the setter, e.g. wallpaper.jpg
	DownloadTimeout time.Duration
	UserAgent       string
}

// Client turns the latest published snapshot into the desktop wallpaper
type Client struct {
	httpClient   *http.Client
	apiURL       string
	userAgent    string
	width        int
	height       int
	downloadFile string
	outputFile   string
	setter       Setter
	tracker      *analytics.Tracker
	log          zerolog.Logger
}

// NewClient creates a wallpaper client. tracker may be nil.
func NewClient(cfg Config, setter Setter, tracker *analytics.Tracker, log zerolog.Logger) *Client {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 20 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.DownloadTimeout,
			Transport: otelhttp.NewTransport(transport),
		},
		apiURL:       cfg.APIURL,
		userAgent:    cfg.UserAgent,
		width:        cfg.ScreenWidth,
		height:       cfg.ScreenHeight,
		downloadFile: cfg.DownloadFile,
		outputFile:   cfg.OutputFile,
		setter:       setter,
		tracker:      tracker,
		log:          log,
	}
}

// ApplyLatest resolves the image URL from the metadata endpoint, downloads it and applies it
func (c *Client) ApplyLatest(ctx context.Context) error {
	imageURL, err := c.ResolveImageURL(ctx)
	if err != nil {
		return err
	}
	c.log.Info().Str("url", imageURL).Msg("latest image resolved")

	if err := c.Download(ctx, imageURL, c.downloadFile); err != nil {
		return err
	}
	return c.ApplyFile(c.downloadFile)
}

// ApplyFile fits a local image to the screen and hands the result to the setter
func (c *Client) ApplyFile(path string) (err error) {
	defer func() {
		if err != nil {
			c.tracker.Track(analytics.EventWallpaperFailed, map[string]interface{}{"error": err.Error()})
		} else {
			c.tracker.Track(analytics.EventWallpaperApplied, nil)
		}
	}()

	img, err := decodeFile(path)
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	fitted := Fit(img, c.width, c.height)
	if err := writeJPEG(c.outputFile, fitted); err != nil {
		return err
	}

	abs, err := filepath.Abs(c.outputFile)
	if err != nil {
		return fmt.Errorf("failed to resolve wallpaper path: %w", err)
	}
	if err := c.setter.Set(abs); err != nil {
		return fmt.Errorf("failed to set wallpaper: %w", err)
	}

	c.log.Info().Str("path", abs).Msg("wallpaper applied")
	return nil
}

// Download fetches url into dest through a temp file
func (c *Client) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image download failed with status: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	return writeAtomic(dest, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
}

// Run applies the latest image immediately and then waits interval after each attempt,
// until ctx is cancelled. A failed or panicking iteration is logged and the loop continues.
func (c *Client) Run(ctx context.Context, interval time.Duration) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		c.runOnce(ctx)
		timer.Reset(interval)

		select {
		case <-ctx.Done():
		case <-timer.C:
			if ctx.Err() == nil {
				continue
			}
		}
		return nil
	}
}

func (c *Client) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("recovered from panic")
		}
	}()

	if err := c.ApplyLatest(ctx); err != nil {
		c.log.Warn().Err(err).Msg("wallpaper not updated")
	}
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

func writeJPEG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create wallpaper directory: %w", err)
	}
	if err := writeAtomic(path, func(w io.Writer) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	}); err != nil {
		return fmt.Errorf("failed to write wallpaper: %w", err)
	}
	return nil
}

func writeAtomic(dest string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
