package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"himawari-desktop/internal/cache"
	"himawari-desktop/internal/himawari"
	"himawari-desktop/internal/imagery"
	"himawari-desktop/internal/metrics"
	"himawari-desktop/internal/snapshot"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 2, 4, 13, 27, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func encodeTile(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 20, G: 60, B: 120, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// providerServer serves tileBytes for every tile of the 2024-01-02 03:40 snapshot
// except the coordinates listed in missing.
func providerServer(t *testing.T, tileBytes []byte, missing ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/img/2024/01/02/034000_") {
			http.NotFound(w, r)
			return
		}
		for _, m := range missing {
			if strings.HasSuffix(r.URL.Path, "_"+m+".png") {
				http.NotFound(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(tileBytes)
	}))
}

type stack struct {
	driver  *Driver
	root    string
	scratch string
}

func newStack(t *testing.T, srv *httptest.Server, grid, tileSize int, opts Options) stack {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "himawari")
	scratch := filepath.Join(dir, "scratch")
	rec := metrics.New()

	client := himawari.NewClient(himawari.ClientConfig{
		URLTemplate: srv.URL + "/img/{ts}_{col}_{row}.png",
		ScratchDir:  scratch,
		Timeout:     5 * time.Second,
	}, nil)
	opts.Assembler = imagery.NewAssembler(client, imagery.Config{GridSize: grid, TileSize: tileSize}, rec, zerolog.Nop())
	opts.Janitor = cache.NewJanitor(cache.Config{
		ScratchDir:    scratch,
		ArchiveRoot:   root,
		GridSize:      grid,
		RetentionDays: 1,
	}, rec, zerolog.Nop())
	opts.Metrics = rec
	if opts.Clock == nil {
		opts.Clock = fixedClock
	}

	d := NewDriver(Config{ArchiveRoot: root}, opts, zerolog.Nop())
	return stack{driver: d, root: root, scratch: scratch}
}

func scratchTiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*tile_*"))
	require.NoError(t, err)
	return matches
}

func TestRunOnceEndToEnd(t *testing.T) {
	srv := providerServer(t, encodeTile(t, 550))
	defer srv.Close()

	s := newStack(t, srv, 4, 550, Options{})

	// an expired day that the iteration should clean up
	require.NoError(t, os.MkdirAll(filepath.Join(s.root, "20240101"), 0755))

	res := s.driver.RunOnce(context.Background())
	require.NoError(t, res.Err)
	require.True(t, res.Success())

	want := filepath.Join(s.root, "20240102", "202401020340.jpg")
	assert.Equal(t, want, res.OutputPath)
	assert.Equal(t, snapshot.At(time.Date(2024, 1, 2, 3, 40, 0, 0, time.UTC)), res.Timestamp)
	assert.Equal(t, []string{"20240101"}, res.Expired)

	f, err := os.Open(want)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 2200, cfg.Width)
	assert.Equal(t, 2200, cfg.Height)

	assert.Empty(t, scratchTiles(t, s.scratch))
}

func TestRunOnceAfterMidnightKeepsSnapshot(t *testing.T) {
	tile := encodeTile(t, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/img/2024/01/01/234000_") {
			http.NotFound(w, r)
			return
		}
		w.Write(tile)
	}))
	defer srv.Close()

	runAt := time.Date(2024, 1, 2, 0, 15, 0, 0, time.UTC)
	s := newStack(t, srv, 2, 8, Options{Clock: func() time.Time { return runAt }})
	require.NoError(t, os.MkdirAll(filepath.Join(s.root, "20240101"), 0755))

	res := s.driver.RunOnce(context.Background())
	require.NoError(t, res.Err)
	require.True(t, res.Success())

	assert.Equal(t, filepath.Join(s.root, "20240102", "202401012340.jpg"), res.OutputPath)
	assert.Equal(t, []string{"20240101"}, res.Expired)
	assert.FileExists(t, res.OutputPath)
}

func TestRunOnceMissingTileProducesNothing(t *testing.T) {
	srv := providerServer(t, encodeTile(t, 16), "2_1")
	defer srv.Close()

	s := newStack(t, srv, 4, 16, Options{})

	res := s.driver.RunOnce(context.Background())
	require.ErrorIs(t, res.Err, imagery.ErrIncompleteGrid)
	require.ErrorIs(t, res.Err, himawari.ErrTileUnavailable)
	assert.False(t, res.Success())
	assert.Empty(t, res.OutputPath)

	assert.NoDirExists(t, filepath.Join(s.root, "20240102"))
	assert.Empty(t, scratchTiles(t, s.scratch))
}

func TestRunOnceHooks(t *testing.T) {
	srv := providerServer(t, encodeTile(t, 8))
	defer srv.Close()

	pub := &fakePublisher{err: errors.New("bucket unreachable")}
	var composed []Result
	s := newStack(t, srv, 2, 8, Options{
		Publisher:  pub,
		OnComposed: func(ctx context.Context, res Result) { composed = append(composed, res) },
	})

	res := s.driver.RunOnce(context.Background())
	require.NoError(t, res.Err, "a failed publish never fails the run")
	assert.Equal(t, []string{res.OutputPath}, pub.paths)
	require.Len(t, composed, 1)
	assert.Equal(t, res.OutputPath, composed[0].OutputPath)
}

type fakePublisher struct {
	paths []string
	err   error
}

func (p *fakePublisher) Publish(ctx context.Context, ts snapshot.Timestamp, localPath string) error {
	p.paths = append(p.paths, localPath)
	return p.err
}

type fakeJanitor struct {
	mu      sync.Mutex
	sweeps  int
	expires int
}

func (j *fakeJanitor) SweepScratch() (int, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sweeps++
	return 0, 0
}

func (j *fakeJanitor) ExpireArchive(time.Time) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.expires++
	return nil
}

type funcAssembler func(ctx context.Context, ts snapshot.Timestamp, out string) (*imagery.Canvas, error)

func (f funcAssembler) Assemble(ctx context.Context, ts snapshot.Timestamp, out string) (*imagery.Canvas, error) {
	return f(ctx, ts, out)
}

func TestRunOnceRecoversFromPanic(t *testing.T) {
	janitor := &fakeJanitor{}
	d := NewDriver(Config{ArchiveRoot: t.TempDir()}, Options{
		Assembler: funcAssembler(func(context.Context, snapshot.Timestamp, string) (*imagery.Canvas, error) {
			panic("decoder exploded")
		}),
		Janitor: janitor,
		Clock:   fixedClock,
	}, zerolog.Nop())

	var res Result
	require.NotPanics(t, func() { res = d.RunOnce(context.Background()) })
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "decoder exploded")
	assert.Empty(t, res.OutputPath)
	assert.Equal(t, 1, janitor.sweeps)
	assert.Equal(t, 1, janitor.expires)
}

func TestRunRepeatsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls, inflight, maxInflight := 0, 0, 0

	janitor := &fakeJanitor{}
	d := NewDriver(Config{ArchiveRoot: t.TempDir(), UpdateInterval: 5 * time.Millisecond}, Options{
		Assembler: funcAssembler(func(context.Context, snapshot.Timestamp, string) (*imagery.Canvas, error) {
			mu.Lock()
			calls++
			inflight++
			if inflight > maxInflight {
				maxInflight = inflight
			}
			n := calls
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inflight--
			mu.Unlock()

			if n == 2 {
				panic("second iteration crashes")
			}
			if n == 4 {
				cancel()
			}
			return nil, fmt.Errorf("iteration %d failed", n)
		}),
		Janitor: janitor,
	}, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, calls, "loop survives failures and panics")
	assert.Equal(t, 1, maxInflight, "iterations never overlap")
	assert.Equal(t, 4, janitor.sweeps)
}

func TestRunWaitsFullIntervalAfterEachIteration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const interval = 20 * time.Millisecond
	var mu sync.Mutex
	var starts, ends []time.Time

	d := NewDriver(Config{ArchiveRoot: t.TempDir(), UpdateInterval: interval}, Options{
		Assembler: funcAssembler(func(context.Context, snapshot.Timestamp, string) (*imagery.Canvas, error) {
			mu.Lock()
			starts = append(starts, time.Now())
			n := len(starts)
			mu.Unlock()

			// longer than the interval
			time.Sleep(30 * time.Millisecond)

			mu.Lock()
			ends = append(ends, time.Now())
			mu.Unlock()
			if n == 3 {
				cancel()
			}
			return nil, errors.New("no tiles")
		}),
		Janitor: &fakeJanitor{},
	}, zerolog.Nop())

	require.NoError(t, d.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(ends[i-1]), interval)
	}
}
