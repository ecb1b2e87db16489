// Package cache keeps the scratch directory and the snapshot archive bounded.
package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"himawari-desktop/internal/common"
	"himawari-desktop/internal/metrics"
	"himawari-desktop/internal/utils/naming"

	"github.com/rs/zerolog"
)

// Janitor removes scratch tiles after each run and expires old archive days
type Janitor struct {
	cfg     Config
	metrics *metrics.Recorder
	log     zerolog.Logger
}

// NewJanitor creates a janitor. rec may be nil.
func NewJanitor(cfg Config, rec *metrics.Recorder, log zerolog.Logger) *Janitor {
	if cfg.RetentionDays < 1 {
		cfg.RetentionDays = 1
	}
	return &Janitor{cfg: cfg, metrics: rec, log: log}
}

// SweepScratch deletes every tile_<col>_<row>.png of the grid plus any partial
// downloads. Missing files are fine; other failures are logged and counted but
// never returned, so the sweep can always run from a defer.
func (j *Janitor) SweepScratch() (removed, failed int) {
	bounds := common.TileBounds{Size: j.cfg.GridSize}

	paths := make([]string, 0, bounds.Count())
	for _, c := range bounds.RowMajor() {
		paths = append(paths, filepath.Join(j.cfg.ScratchDir, naming.ScratchTileName(c.Col, c.Row)))
	}
	partials, _ := filepath.Glob(filepath.Join(j.cfg.ScratchDir, ".tile_*.part"))
	paths = append(paths, partials...)

	for _, path := range paths {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			failed++
			j.log.Warn().Err(err).Str("path", path).Msg("failed to remove scratch tile")
		}
	}

	j.metrics.SweepFailed(failed)
	if removed > 0 || failed > 0 {
		j.log.Debug().Int("removed", removed).Int("failed", failed).Msg("scratch swept")
	}
	return removed, failed
}

// ExpireArchive removes day directories dated on or before today(UTC) minus the
// retention. Entries that are not YYYYMMDD directories are left alone, and a
// missing archive root is not an error.
func (j *Janitor) ExpireArchive(now time.Time) (removed []string) {
	entries, err := os.ReadDir(j.cfg.ArchiveRoot)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			j.log.Warn().Err(err).Str("root", j.cfg.ArchiveRoot).Msg("failed to list archive")
		}
		return nil
	}

	cutoff := common.TruncateDay(now.UTC()).AddDate(0, 0, -j.cfg.RetentionDays)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		day, err := common.ParseArchiveDay(entry.Name())
		if err != nil {
			continue
		}
		if day.After(cutoff) {
			continue
		}

		path := filepath.Join(j.cfg.ArchiveRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.log.Warn().Err(err).Str("path", path).Msg("failed to expire archive day")
			continue
		}
		removed = append(removed, entry.Name())
	}

	j.metrics.DaysExpired(len(removed))
	if len(removed) > 0 {
		j.log.Info().Strs("days", removed).Msg("archive days expired")
	}
	return removed
}

// Stats walks the archive and reports the number of day directories, snapshots and bytes
func (j *Janitor) Stats() (days, snapshots int, sizeBytes int64) {
	entries, err := os.ReadDir(j.cfg.ArchiveRoot)
	if err != nil {
		return 0, 0, 0
	}

	for _, entry := range entries {
		if !entry.IsDir() || !common.IsArchiveDay(entry.Name()) {
			continue
		}
		days++

		files, err := os.ReadDir(filepath.Join(j.cfg.ArchiveRoot, entry.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".jpg" {
				continue
			}
			if info, err := f.Info(); err == nil {
				snapshots++
				sizeBytes += info.Size()
			}
		}
	}
	return days, snapshots, sizeBytes
}

// ArchiveRoot returns the directory holding the day directories
func (j *Janitor) ArchiveRoot() string {
	return j.cfg.ArchiveRoot
}
