// Package pipeline runs the resolve, assemble, sweep and expire sequence, once or on a schedule.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"himawari-desktop/internal/analytics"
	"himawari-desktop/internal/himawari"
	"himawari-desktop/internal/imagery"
	"himawari-desktop/internal/metrics"
	"himawari-desktop/internal/snapshot"
	"himawari-desktop/internal/utils/naming"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Assembler composes one snapshot
type Assembler interface {
	Assemble(ctx context.Context, ts snapshot.Timestamp, outputPath string) (*imagery.Canvas, error)
}

// Janitor bounds scratch and archive storage
type Janitor interface {
	SweepScratch() (removed, failed int)
	ExpireArchive(now time.Time) []string
}

// Publisher mirrors a composed snapshot somewhere else
type Publisher interface {
	Publish(ctx context.Context, ts snapshot.Timestamp, localPath string) error
}

// Config holds the scheduling parameters
type Config struct {
	ArchiveRoot      string
	PublicationDelay time.Duration
	FloorInterval    time.Duration
	UpdateInterval   time.Duration
}

// Options wires the collaborators. Assembler and Janitor are required.
type Options struct {
	Assembler Assembler
	Janitor   Janitor
	Publisher Publisher
	Tracker   *analytics.Tracker
	Metrics   *metrics.Recorder
	// OnComposed runs after a snapshot is written, e.g. to apply it as wallpaper
	OnComposed func(ctx context.Context, res Result)
	Clock      func() time.Time
}

// Result is the outcome of one iteration
type Result struct {
	RunID      string
	Timestamp  snapshot.Timestamp
	OutputPath string // empty on failure
	Expired    []string
	Err        error
	Duration   time.Duration
}

// Success reports whether a snapshot was composed
func (r Result) Success() bool {
	return r.Err == nil && r.OutputPath != ""
}

// Driver owns the pipeline loop
type Driver struct {
	cfg  Config
	opts Options
	log  zerolog.Logger
}

// NewDriver creates a driver
func NewDriver(cfg Config, opts Options, log zerolog.Logger) *Driver {
	if cfg.PublicationDelay <= 0 {
		cfg.PublicationDelay = snapshot.DefaultPublicationDelay
	}
	if cfg.FloorInterval <= 0 {
		cfg.FloorInterval = snapshot.DefaultInterval
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 15 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Driver{cfg: cfg, opts: opts, log: log}
}

// RunOnce performs one isolated iteration. Errors and panics end up in Result.Err;
// the scratch sweep and archive expiry always run, even after a panic.
func (d *Driver) RunOnce(ctx context.Context) (res Result) {
	now := d.opts.Clock()
	res.RunID = uuid.NewString()
	res.Timestamp = snapshot.Resolve(now, d.cfg.PublicationDelay, d.cfg.FloorInterval)
	log := d.log.With().Str("run_id", res.RunID).Str("snapshot", res.Timestamp.Compact()).Logger()

	ctx, span := otel.Tracer("himawari-desktop/pipeline").Start(ctx, "pipeline.RunOnce")
	span.SetAttributes(
		attribute.String("run_id", res.RunID),
		attribute.String("snapshot", res.Timestamp.Compact()),
	)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("pipeline iteration panicked: %v", r)
			res.OutputPath = ""
			log.Error().Str("stack", string(debug.Stack())).Err(res.Err).Msg("recovered from panic")
		}
		res.Duration = d.opts.Clock().Sub(now)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "snapshot failed")
		}
		span.End()
		d.report(ctx, log, res)
	}()

	defer func() {
		res.Expired = d.opts.Janitor.ExpireArchive(d.opts.Clock())
	}()

	log.Info().Msg("pipeline iteration started")

	outputPath := naming.SnapshotPath(d.cfg.ArchiveRoot, now, res.Timestamp.Time())
	if err := d.assemble(ctx, res.Timestamp, outputPath); err != nil {
		res.Err = err
	} else {
		res.OutputPath = outputPath
	}
	return res
}

// assemble runs the assembler and always sweeps scratch afterwards
func (d *Driver) assemble(ctx context.Context, ts snapshot.Timestamp, outputPath string) error {
	defer d.opts.Janitor.SweepScratch()

	_, err := d.opts.Assembler.Assemble(ctx, ts, outputPath)
	return err
}

func (d *Driver) report(ctx context.Context, log zerolog.Logger, res Result) {
	d.opts.Metrics.RunFinished(res.Success(), res.Duration.Seconds())

	if !res.Success() {
		var statusErr *himawari.StatusError
		throttled := errors.As(res.Err, &statusErr) && statusErr.IsRateLimited()

		log.Warn().Err(res.Err).Bool("rate_limited", throttled).Dur("duration", res.Duration).Msg("no snapshot this iteration")
		d.opts.Tracker.Track(analytics.EventSnapshotFailed, map[string]interface{}{
			"snapshot":     res.Timestamp.Compact(),
			"error":        fmt.Sprint(res.Err),
			"rate_limited": throttled,
		})
		return
	}

	log.Info().Str("output", res.OutputPath).Dur("duration", res.Duration).Msg("snapshot stored")
	d.opts.Metrics.SnapshotComposed(res.Timestamp.Time().Unix())
	d.opts.Tracker.Track(analytics.EventSnapshotComposed, map[string]interface{}{
		"snapshot":    res.Timestamp.Compact(),
		"duration_ms": res.Duration.Milliseconds(),
	})

	if d.opts.Publisher != nil {
		if err := d.opts.Publisher.Publish(ctx, res.Timestamp, res.OutputPath); err != nil {
			log.Warn().Err(err).Msg("failed to publish snapshot")
		}
	}

	if d.opts.OnComposed != nil {
		d.safeHook(ctx, log, res)
	}
}

func (d *Driver) safeHook(ctx context.Context, log zerolog.Logger, res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("composed hook panicked")
		}
	}()
	d.opts.OnComposed(ctx, res)
}

// Run executes an iteration immediately and then waits UpdateInterval after each
// one finishes, until ctx is cancelled. Iterations never overlap; each one's failure
// is logged and the loop continues.
func (d *Driver) Run(ctx context.Context) error {
	d.log.Info().Dur("interval", d.cfg.UpdateInterval).Msg("pipeline loop started")

	timer := time.NewTimer(d.cfg.UpdateInterval)
	defer timer.Stop()

	for {
		d.RunOnce(ctx)
		timer.Reset(d.cfg.UpdateInterval)

		select {
		case <-ctx.Done():
		case <-timer.C:
			if ctx.Err() == nil {
				continue
			}
		}
		d.log.Info().Msg("pipeline loop stopped")
		return nil
	}
}
