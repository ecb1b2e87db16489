// Package imagery fetches an N x N tile grid and composes it into a single snapshot.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"himawari-desktop/internal/common"
	"himawari-desktop/internal/metrics"
	"himawari-desktop/internal/snapshot"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyGrid is returned when the grid has no tiles to fetch
	ErrEmptyGrid = errors.New("grid has no tiles")
	// ErrIncompleteGrid is returned when any tile of the grid could not be fetched
	ErrIncompleteGrid = errors.New("incomplete tile grid")
	// ErrTileSize is returned when a decoded tile is not tileSize x tileSize
	ErrTileSize = errors.New("unexpected tile dimensions")
)

// TileCoord addresses one tile of the grid
type TileCoord = common.TileCoord

// TileFetcher retrieves one tile and returns the path of the stored image
type TileFetcher interface {
	FetchTile(ctx context.Context, ts snapshot.Timestamp, col, row int) (string, error)
}

// Config describes the grid and encoding settings
type Config struct {
	GridSize    int
	TileSize    int
	Workers     int // 1 = sequential
	JPEGQuality int
}

// Canvas is a fully composed snapshot
type Canvas struct {
	Image     *image.RGBA
	Timestamp snapshot.Timestamp
	Path      string
}

// Assembler fetches every tile of a snapshot and stitches them once all are present
type Assembler struct {
	fetcher TileFetcher
	cfg     Config
	metrics *metrics.Recorder
	log     zerolog.Logger
}

// NewAssembler creates an assembler. rec may be nil.
func NewAssembler(fetcher TileFetcher, cfg Config, rec *metrics.Recorder, log zerolog.Logger) *Assembler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 90
	}
	return &Assembler{
		fetcher: fetcher,
		cfg:     cfg,
		metrics: rec,
		log:     log,
	}
}

// Assemble fetches all tiles of ts in row-major order and writes the composed JPEG to
// outputPath. The first missing tile aborts the run: nothing is composed and no
// output file is created.
func (a *Assembler) Assemble(ctx context.Context, ts snapshot.Timestamp, outputPath string) (*Canvas, error) {
	bounds := common.TileBounds{Size: a.cfg.GridSize}
	coords := bounds.RowMajor()
	if len(coords) == 0 {
		return nil, ErrEmptyGrid
	}

	var paths []string
	var err error
	if a.cfg.Workers > 1 {
		paths, err = a.fetchParallel(ctx, ts, coords)
	} else {
		paths, err = a.fetchSequential(ctx, ts, coords)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompleteGrid, err)
	}

	img, err := Stitch(paths, a.cfg.GridSize, a.cfg.TileSize)
	if err != nil {
		return nil, err
	}

	if err := EncodeJPEG(outputPath, img, a.cfg.JPEGQuality); err != nil {
		return nil, err
	}

	a.log.Info().
		Str("snapshot", ts.Compact()).
		Str("output", outputPath).
		Int("tiles", len(coords)).
		Msg("snapshot composed")

	return &Canvas{Image: img, Timestamp: ts, Path: outputPath}, nil
}

func (a *Assembler) fetchSequential(ctx context.Context, ts snapshot.Timestamp, coords []TileCoord) ([]string, error) {
	paths := make([]string, len(coords))
	for i, c := range coords {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, err := a.fetchOne(ctx, ts, c)
		if err != nil {
			return nil, err
		}
		paths[i] = path
	}
	return paths, nil
}

// fetchParallel runs a bounded worker pool; the first failure cancels the rest
func (a *Assembler) fetchParallel(ctx context.Context, ts snapshot.Timestamp, coords []TileCoord) ([]string, error) {
	paths := make([]string, len(coords))

	workerCount := a.cfg.Workers
	if len(coords) < workerCount {
		workerCount = len(coords)
	}

	type job struct {
		index int
		coord TileCoord
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job)

	g.Go(func() error {
		defer close(jobs)
		for i, c := range coords {
			select {
			case jobs <- job{index: i, coord: c}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workerCount; i++ {
		g.Go(func() error {
			for j := range jobs {
				path, err := a.fetchOne(gctx, ts, j.coord)
				if err != nil {
					return err
				}
				paths[j.index] = path
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (a *Assembler) fetchOne(ctx context.Context, ts snapshot.Timestamp, c TileCoord) (string, error) {
	path, err := a.fetcher.FetchTile(ctx, ts, c.Col, c.Row)
	a.metrics.TileFetched(err == nil)
	if err != nil {
		a.log.Warn().
			Err(err).
			Str("snapshot", ts.Compact()).
			Str("tile", c.String()).
			Msg("tile unavailable, aborting snapshot")
		return "", fmt.Errorf("tile %s: %w", c, err)
	}
	return path, nil
}

// Stitch decodes row-major tile files and draws each at (col*tileSize, row*tileSize)
// without scaling.
func Stitch(tiles []string, grid, tileSize int) (*image.RGBA, error) {
	if grid <= 0 {
		return nil, ErrEmptyGrid
	}
	if len(tiles) != grid*grid {
		return nil, fmt.Errorf("%w: have %d tiles, want %d", ErrIncompleteGrid, len(tiles), grid*grid)
	}

	outputImg := image.NewRGBA(image.Rect(0, 0, grid*tileSize, grid*tileSize))

	for i, path := range tiles {
		col, row := i%grid, i/grid

		img, err := decodeFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tile %d,%d: %w", col, row, err)
		}

		b := img.Bounds()
		if b.Dx() != tileSize || b.Dy() != tileSize {
			return nil, fmt.Errorf("%w: tile %d,%d is %dx%d, want %dx%d",
				ErrTileSize, col, row, b.Dx(), b.Dy(), tileSize, tileSize)
		}

		xOffset := col * tileSize
		yOffset := row * tileSize
		destRect := image.Rect(xOffset, yOffset, xOffset+tileSize, yOffset+tileSize)
		draw.Draw(outputImg, destRect, img, b.Min, draw.Src)
	}

	return outputImg, nil
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

// EncodeJPEG writes img to path through a temp file so readers never see a partial image
func EncodeJPEG(path string, img image.Image, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	tmpName := tmp.Name()

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: quality}); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move output file into place: %w", err)
	}
	return nil
}
