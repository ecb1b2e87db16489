package common

import (
	"fmt"
	"regexp"
	"time"
)

// Standard date format constants
const (
	// ArchiveDay names one archive partition directory (one per UTC day)
	ArchiveDay = "20060102"

	// SnapshotStamp names a composed snapshot file inside its day directory
	SnapshotStamp = "200601021504"

	// SnapshotPath is the path-safe form of a snapshot timestamp
	SnapshotPath = "2006/01/02/1504"

	// ProviderStamp is the timestamp segment of the provider tile URL (seconds always zero)
	ProviderStamp = "2006/01/02/150405"
)

var archiveDayPattern = regexp.MustCompile(`^\d{8}$`)

// ParseArchiveDay parses an archive directory name (YYYYMMDD) as a UTC date
func ParseArchiveDay(name string) (time.Time, error) {
	if !archiveDayPattern.MatchString(name) {
		return time.Time{}, fmt.Errorf("not an archive day: %q", name)
	}
	return time.ParseInLocation(ArchiveDay, name, time.UTC)
}

// FormatArchiveDay formats a time as an archive directory name in UTC
func FormatArchiveDay(t time.Time) string {
	return t.UTC().Format(ArchiveDay)
}

// IsArchiveDay reports whether name looks like an archive directory (8 digits)
func IsArchiveDay(name string) bool {
	return archiveDayPattern.MatchString(name)
}

// TruncateDay returns midnight UTC of t's calendar day
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
