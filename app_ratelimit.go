package main

import (
	"himawari-desktop/internal/analytics"
	"himawari-desktop/internal/ratelimit"
)

// watchRateLimits reports provider throttling transitions to metrics and analytics.
// Only the first throttled response of a streak is reported.
func (a *App) watchRateLimits() {
	a.rateLimits.SetOnRateLimit(func(event ratelimit.RateLimitEvent) {
		if event.Occurrences > 1 {
			return
		}
		a.metrics.RateLimitChanged(true)
		a.TrackEvent(analytics.EventRateLimited, map[string]interface{}{
			"provider": event.Provider,
			"status":   event.StatusCode,
		})
	})

	a.rateLimits.SetOnRecovered(func(provider string) {
		a.metrics.RateLimitChanged(false)
		a.TrackEvent(analytics.EventRateLimitCleared, map[string]interface{}{
			"provider": provider,
		})
	})
}

// ArchiveStats represents archive statistics for the status command
type ArchiveStats struct {
	Days      int     `json:"days" yaml:"days"`
	Snapshots int     `json:"snapshots" yaml:"snapshots"`
	SizeBytes int64   `json:"sizeBytes" yaml:"sizeBytes"`
	SizeMB    float64 `json:"sizeMB" yaml:"sizeMB"`
	Path      string  `json:"path" yaml:"path"`
}

// GetArchiveStats returns current archive statistics
func (a *App) GetArchiveStats() ArchiveStats {
	days, snapshots, sizeBytes := a.janitor.Stats()

	return ArchiveStats{
		Days:      days,
		Snapshots: snapshots,
		SizeBytes: sizeBytes,
		SizeMB:    float64(sizeBytes) / 1024 / 1024,
		Path:      a.janitor.ArchiveRoot(),
	}
}
