// Package analytics sends anonymous usage events to PostHog.
package analytics

import (
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog"
)

// Event names
const (
	EventAppStarted       = "app_started"
	EventSnapshotComposed = "snapshot_composed"
	EventSnapshotFailed   = "snapshot_failed"
	EventWallpaperApplied = "wallpaper_applied"
	EventWallpaperFailed  = "wallpaper_failed"
	EventRateLimited      = "rate_limited"
	EventRateLimitCleared = "rate_limit_cleared"
)

// sink is the part of posthog.Client the tracker uses
type sink interface {
	Enqueue(posthog.Message) error
	Close() error
}

// Tracker enqueues events under a per-install distinct id. A nil *Tracker or
// one without a key is a no-op.
type Tracker struct {
	client     sink
	distinctID string
	log        zerolog.Logger
}

// New creates a tracker. With an empty key no events are sent.
// The install id is persisted under dataDir so events from one machine group together.
func New(key, host, dataDir string, log zerolog.Logger) *Tracker {
	t := &Tracker{distinctID: installID(dataDir), log: log}
	if key == "" {
		return t
	}

	client, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: host})
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize PostHog")
		return t
	}
	t.client = client
	return t
}

// Track sends an event to PostHog
func (t *Tracker) Track(event string, props map[string]interface{}) {
	if t == nil || t.client == nil {
		return
	}
	if props == nil {
		props = map[string]interface{}{}
	}
	props["os"] = goruntime.GOOS
	props["arch"] = goruntime.GOARCH

	if err := t.client.Enqueue(posthog.Capture{
		DistinctId: t.distinctID,
		Event:      event,
		Properties: props,
	}); err != nil {
		t.log.Debug().Err(err).Str("event", event).Msg("failed to enqueue analytics event")
	}
}

// Close flushes queued events
func (t *Tracker) Close() {
	if t == nil || t.client == nil {
		return
	}
	t.client.Close()
}

// installID reads or creates dataDir/install_id
func installID(dataDir string) string {
	if dataDir == "" {
		return uuid.NewString()
	}

	path := filepath.Join(dataDir, "install_id")
	if data, err := os.ReadFile(path); err == nil {
		if id, err := uuid.Parse(strings.TrimSpace(string(data))); err == nil {
			return id.String()
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0755); err == nil {
		os.WriteFile(path, []byte(id), 0644)
	}
	return id
}
