// Package himawari fetches full-disk tiles from the Himawari provider.
package himawari

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"himawari-desktop/internal/common"
	"himawari-desktop/internal/ratelimit"
	"himawari-desktop/internal/snapshot"
	"himawari-desktop/internal/utils/naming"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTileURLTemplate is the 4x4, 550px full-disk product
const DefaultTileURLTemplate = "https://himawari.asia/img/D531106/4d/550/{ts}_{col}_{row}.png"

// ErrTileUnavailable is returned for any tile that could not be retrieved in full
var ErrTileUnavailable = errors.New("tile unavailable")

// StatusError carries a non-2xx provider response
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tile request failed with status: %d", e.Code)
}

// IsRateLimited reports whether the provider throttled the request
func (e *StatusError) IsRateLimited() bool {
	return ratelimit.IsRateLimitStatus(e.Code)
}

// ClientConfig configures a tile client
type ClientConfig struct {
	URLTemplate string
	ScratchDir  string
	Timeout     time.Duration
	UserAgent   string
}

// Client downloads single tiles into the scratch directory
type Client struct {
	httpClient  *http.Client
	urlTemplate string
	scratchDir  string
	userAgent   string
	rateLimits  *ratelimit.Handler
	tracer      trace.Tracer
}

// NewClient creates a tile client with system proxy support.
// rateLimits may be nil.
func NewClient(cfg ClientConfig, rateLimits *ratelimit.Handler) *Client {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultTileURLTemplate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		urlTemplate: cfg.URLTemplate,
		scratchDir:  cfg.ScratchDir,
		userAgent:   cfg.UserAgent,
		rateLimits:  rateLimits,
		tracer:      otel.Tracer("himawari-desktop/himawari"),
	}
}

// TileURL builds the provider URL for one tile of a snapshot
func (c *Client) TileURL(ts snapshot.Timestamp, col, row int) string {
	return strings.NewReplacer(
		"{ts}", ts.ProviderPath(),
		"{col}", strconv.Itoa(col),
		"{row}", strconv.Itoa(row),
	).Replace(c.urlTemplate)
}

// ScratchPath is where tile (col,row) lands, independent of the snapshot
func (c *Client) ScratchPath(col, row int) string {
	return filepath.Join(c.scratchDir, naming.ScratchTileName(col, row))
}

// FetchTile downloads one tile with a single GET and returns the scratch file path.
// Any failure wraps ErrTileUnavailable and leaves no file behind.
func (c *Client) FetchTile(ctx context.Context, ts snapshot.Timestamp, col, row int) (string, error) {
	ctx, span := c.tracer.Start(ctx, "himawari.FetchTile", trace.WithAttributes(
		attribute.String("snapshot", ts.Compact()),
		attribute.Int("tile.col", col),
		attribute.Int("tile.row", row),
	))
	defer span.End()

	path, err := c.fetchTile(ctx, ts, col, row)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tile unavailable")
		return "", err
	}
	return path, nil
}

func (c *Client) fetchTile(ctx context.Context, ts snapshot.Timestamp, col, row int) (string, error) {
	url := c.TileURL(ts, col, row)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %w", ErrTileUnavailable, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to fetch tile %d,%d: %w", ErrTileUnavailable, col, row, err)
	}
	defer resp.Body.Close()

	if c.rateLimits != nil {
		c.rateLimits.CheckStatus(common.ProviderHimawari, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %w", ErrTileUnavailable, &StatusError{Code: resp.StatusCode, URL: url})
	}

	if err := os.MkdirAll(c.scratchDir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create scratch directory: %w", ErrTileUnavailable, err)
	}

	dest := c.ScratchPath(col, row)
	if err := writeAtomic(dest, resp.Body); err != nil {
		return "", fmt.Errorf("%w: failed to store tile %d,%d: %w", ErrTileUnavailable, col, row, err)
	}
	return dest, nil
}

// writeAtomic streams r into a sibling temp file and renames it over dest
func writeAtomic(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
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
