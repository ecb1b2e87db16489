// Package snapshot resolves the capture time of the most recent full-disk image
// that the provider is likely to have published.
package snapshot

import (
	"time"

	"himawari-desktop/internal/common"
)

const (
	// DefaultPublicationDelay is subtracted from now before flooring
	DefaultPublicationDelay = 30 * time.Minute

	// DefaultInterval is the provider's update granularity
	DefaultInterval = 10 * time.Minute
)

// Timestamp is the nominal capture time of one full-disk snapshot, always UTC
// and aligned to the resolver interval.
type Timestamp struct {
	t time.Time
}

// Resolve returns floor(now - delay, interval) in UTC.
// A non-positive interval disables flooring below the minute.
func Resolve(now time.Time, delay, interval time.Duration) Timestamp {
	shifted := now.UTC().Add(-delay)
	if interval <= 0 {
		interval = time.Minute
	}
	return Timestamp{t: shifted.Truncate(interval)}
}

// At wraps an already-aligned time, mostly for tests and for parsing archive names.
func At(t time.Time) Timestamp {
	return Timestamp{t: t.UTC()}
}

// Time returns the underlying UTC time
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// Path returns YYYY/MM/DD/HHMM
func (ts Timestamp) Path() string {
	return ts.t.Format(common.SnapshotPath)
}

// ProviderPath returns YYYY/MM/DD/HHMMSS as used in tile URLs
func (ts Timestamp) ProviderPath() string {
	return ts.t.Format(common.ProviderStamp)
}

// Compact returns YYYYMMDDHHMM
func (ts Timestamp) Compact() string {
	return ts.t.Format(common.SnapshotStamp)
}

// DayDir returns YYYYMMDD, the archive partition holding this snapshot
func (ts Timestamp) DayDir() string {
	return common.FormatArchiveDay(ts.t)
}

// String implements fmt.Stringer
func (ts Timestamp) String() string {
	return ts.Path()
}
