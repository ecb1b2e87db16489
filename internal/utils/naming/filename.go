package naming

import (
	"fmt"
	"path/filepath"
	"time"

	"himawari-desktop/internal/common"
)

// ScratchTileName returns the scratch filename for one tile.
// Format: tile_{col}_{row}.png
// Independent of the snapshot timestamp.
func ScratchTileName(col, row int) string {
	return fmt.Sprintf("tile_%d_%d.png", col, row)
}

// SnapshotFilename returns the archive filename of a composed snapshot.
// Format: {YYYYMMDDHHMM}.jpg
func SnapshotFilename(t time.Time) string {
	return t.UTC().Format(common.SnapshotStamp) + ".jpg"
}

// SnapshotPath returns {archiveRoot}/{YYYYMMDD}/{YYYYMMDDHHMM}.jpg.
// The day directory is the UTC day of the run, which can be one day after the
// snapshot itself shortly after midnight; retention counts from the run day.
func SnapshotPath(archiveRoot string, runTime, snapshotTime time.Time) string {
	return filepath.Join(archiveRoot, common.FormatArchiveDay(runTime), SnapshotFilename(snapshotTime))
}
