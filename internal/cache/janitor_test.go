package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"himawari-desktop/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func newTestJanitor(t *testing.T) (*Janitor, Config) {
	t.Helper()
	root := t.TempDir()
	cfg := DefaultConfig(filepath.Join(root, "scratch"), filepath.Join(root, "himawari"))
	return NewJanitor(*cfg, metrics.New(), zerolog.Nop()), *cfg
}

func TestSweepScratchIsIdempotent(t *testing.T) {
	j, cfg := newTestJanitor(t)

	touch(t, filepath.Join(cfg.ScratchDir, "tile_0_0.png"))
	touch(t, filepath.Join(cfg.ScratchDir, "tile_3_3.png"))
	touch(t, filepath.Join(cfg.ScratchDir, ".tile_2_1.png.12345.part"))
	touch(t, filepath.Join(cfg.ScratchDir, "keep.txt"))

	removed, failed := j.SweepScratch()
	assert.Equal(t, 3, removed)
	assert.Zero(t, failed)

	removed, failed = j.SweepScratch()
	assert.Zero(t, removed)
	assert.Zero(t, failed)

	entries, err := os.ReadDir(cfg.ScratchDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())
}

func TestSweepScratchMissingDirectory(t *testing.T) {
	j, _ := newTestJanitor(t)

	removed, failed := j.SweepScratch()
	assert.Zero(t, removed)
	assert.Zero(t, failed)
}

func TestExpireArchive(t *testing.T) {
	j, cfg := newTestJanitor(t)

	touch(t, filepath.Join(cfg.ArchiveRoot, "20240101", "202401010000.jpg"))
	touch(t, filepath.Join(cfg.ArchiveRoot, "20240102", "202401020340.jpg"))
	touch(t, filepath.Join(cfg.ArchiveRoot, "notadate", "file.jpg"))
	touch(t, filepath.Join(cfg.ArchiveRoot, "20231231")) // a plain file, not a day directory

	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	removed := j.ExpireArchive(now)

	assert.Equal(t, []string{"20240101"}, removed)
	assert.NoDirExists(t, filepath.Join(cfg.ArchiveRoot, "20240101"))
	assert.DirExists(t, filepath.Join(cfg.ArchiveRoot, "20240102"))
	assert.DirExists(t, filepath.Join(cfg.ArchiveRoot, "notadate"))
	assert.FileExists(t, filepath.Join(cfg.ArchiveRoot, "20231231"))
}

func TestExpireArchiveRetention(t *testing.T) {
	tests := []struct {
		name      string
		retention int
		now       time.Time
		want      []string
	}{
		{
			name:      "one day keeps today",
			retention: 1,
			now:       time.Date(2024, 1, 3, 0, 5, 0, 0, time.UTC),
			want:      []string{"20240101", "20240102"},
		},
		{
			name:      "two days keeps yesterday",
			retention: 2,
			now:       time.Date(2024, 1, 3, 0, 5, 0, 0, time.UTC),
			want:      []string{"20240101"},
		},
		{
			name:      "non-UTC clock uses the UTC date",
			retention: 1,
			now:       time.Date(2024, 1, 3, 8, 0, 0, 0, time.FixedZone("JST", 9*3600)),
			want:      []string{"20240101"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, cfg := newTestJanitor(t)
			j.cfg.RetentionDays = tt.retention

			for _, day := range []string{"20240101", "20240102", "20240103"} {
				touch(t, filepath.Join(cfg.ArchiveRoot, day, day+"0000.jpg"))
			}

			assert.Equal(t, tt.want, j.ExpireArchive(tt.now))
		})
	}
}

func TestExpireArchiveMissingRoot(t *testing.T) {
	j, _ := newTestJanitor(t)
	assert.Empty(t, j.ExpireArchive(time.Now()))
}

func TestStats(t *testing.T) {
	j, cfg := newTestJanitor(t)

	touch(t, filepath.Join(cfg.ArchiveRoot, "20240101", "202401010000.jpg"))
	touch(t, filepath.Join(cfg.ArchiveRoot, "20240102", "202401020340.jpg"))
	touch(t, filepath.Join(cfg.ArchiveRoot, "20240102", "202401020350.jpg"))
	touch(t, filepath.Join(cfg.ArchiveRoot, "20240102", "notes.txt"))
	touch(t, filepath.Join(cfg.ArchiveRoot, "notadate", "x.jpg"))

	days, snapshots, size := j.Stats()
	assert.Equal(t, 2, days)
	assert.Equal(t, 3, snapshots)
	assert.Equal(t, int64(3), size)
}
