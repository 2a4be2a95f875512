// Package poll drives the prediction and alerting pipeline on a fixed
// cadence for a set of tracked satellites.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/alert"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/geo"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/history"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/metrics"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/notify"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/passes"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/propagation"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/proximity"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/tle"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/transform"
)

// Object identifies a tracked satellite. Immutable for the engine's
// purposes; owned by the caller's configuration.
type Object struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CatalogID   int    `json:"catalog_id"`
}

// Config holds the driver tunables.
type Config struct {
	// Cadence between polling ticks.
	Cadence time.Duration
	// Horizon is how far ahead passes are predicted each tick.
	Horizon time.Duration
	// Lookback extends the prediction range behind now so a pass already in
	// progress keeps its Rise event and stays bounded. Without it the finder
	// drops in-progress passes and overhead alerts mid-pass can never fire.
	// Must exceed the longest expected pass duration.
	Lookback time.Duration
	// MaxConcurrent bounds how many objects are processed in parallel, to
	// avoid overwhelming the TLE source.
	MaxConcurrent int
	// Timeout bounds each external call (TLE fetch, notification send).
	Timeout time.Duration
}

// DefaultConfig returns the production defaults: 60 s cadence, 48 h
// horizon, 30 min lookback, 4 workers, 10 s external-call timeout.
func DefaultConfig() Config {
	return Config{
		Cadence:       time.Minute,
		Horizon:       48 * time.Hour,
		Lookback:      30 * time.Minute,
		MaxConcurrent: 4,
		Timeout:       10 * time.Second,
	}
}

// Validate rejects unusable tunables. Fatal at startup, never at runtime.
func (c Config) Validate() error {
	if c.Cadence <= 0 {
		return fmt.Errorf("cadence must be positive, got %v", c.Cadence)
	}
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %v", c.Horizon)
	}
	if c.Lookback < 0 {
		return fmt.Errorf("lookback must not be negative, got %v", c.Lookback)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// Driver runs the tick loop. Ticks execute sequentially; within a tick,
// objects are processed concurrently up to MaxConcurrent. The same object is
// never processed by two overlapping ticks because a new tick starts only
// after the prior one completes.
type Driver struct {
	cfg       Config
	site      geo.Point
	observer  transform.Observer
	objects   []Object
	source    tle.Source
	prop      propagation.Propagator
	finder    *passes.Finder
	scanner   *proximity.Scanner
	sched     *alert.Scheduler
	transport notify.Transport
	hist      *history.Store // nil disables history recording
	logger    *slog.Logger

	now func() time.Time
}

// NewDriver wires the pipeline. hist may be nil.
func NewDriver(
	cfg Config,
	site geo.Point,
	objects []Object,
	source tle.Source,
	prop propagation.Propagator,
	finder *passes.Finder,
	scanner *proximity.Scanner,
	sched *alert.Scheduler,
	transport notify.Transport,
	hist *history.Store,
	logger *slog.Logger,
) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("poll config: %w", err)
	}
	if !site.Valid() {
		return nil, fmt.Errorf("invalid site coordinates: lat=%v lon=%v", site.LatDeg, site.LonDeg)
	}

	metrics.SetTrackedObjects(len(objects))

	return &Driver{
		cfg:       cfg,
		site:      site,
		observer:  transform.NewObserver(site),
		objects:   objects,
		source:    source,
		prop:      prop,
		finder:    finder,
		scanner:   scanner,
		sched:     sched,
		transport: transport,
		hist:      hist,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Run ticks until ctx is cancelled. An in-flight tick always finishes before
// Run returns, so alert state is never left half-updated. A tick that takes
// longer than the cadence delays the next tick; it is never run twice
// concurrently.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("poll driver starting",
		"cadence_seconds", d.cfg.Cadence.Seconds(),
		"horizon_hours", d.cfg.Horizon.Hours(),
		"objects", len(d.objects),
	)

	ticker := time.NewTicker(d.cfg.Cadence)
	defer ticker.Stop()

	d.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("poll driver stopping")
			return nil
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one polling cycle over all tracked objects.
func (d *Driver) Tick(ctx context.Context) {
	started := time.Now()
	now := d.now().UTC()

	sem := make(chan struct{}, d.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for _, obj := range d.objects {
		wg.Add(1)
		go func(o Object) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			d.processObject(ctx, now, o)
		}(obj)
	}

	wg.Wait()

	for _, ev := range d.sched.Sweep(now) {
		d.recordCompletedPass(ctx, ev)
	}

	metrics.RecordTick(time.Since(started))
	metrics.SetAlertStates(d.sched.StateCount())

	d.logger.Debug("tick complete",
		"duration_ms", time.Since(started).Milliseconds(),
		"alert_states", d.sched.StateCount(),
	)
}

// processObject runs the pipeline for one satellite. Any failure skips the
// object for this tick only: alert latches are untouched and the next tick
// retries naturally. Errors never cross object boundaries.
func (d *Driver) processObject(ctx context.Context, now time.Time, obj Object) {
	fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	elements, err := d.source.Fetch(fetchCtx, obj.CatalogID)
	cancel()
	if err != nil {
		metrics.RecordDataUnavailable("tle")
		d.logger.Warn("skipping object: no elements", "object_id", obj.ID, "catalog_id", obj.CatalogID, "error", err)
		return
	}
	if ager, ok := d.source.(tle.AgeReporter); ok {
		metrics.SetTLEAge(obj.CatalogID, ager.Age(obj.CatalogID))
	}

	predictStart := time.Now()
	found, err := d.finder.Find(elements, d.observer, obj.ID, now.Add(-d.cfg.Lookback), now.Add(d.cfg.Horizon))
	metrics.RecordPrediction(time.Since(predictStart))
	if err != nil {
		metrics.RecordDataUnavailable("prediction")
		d.logger.Warn("skipping object: pass prediction failed", "object_id", obj.ID, "error", err)
		return
	}

	for _, pass := range found {
		windows, err := d.scanner.Scan(elements, pass)
		if err != nil {
			metrics.RecordDataUnavailable("scan")
			d.logger.Warn("skipping object: proximity scan failed", "object_id", obj.ID, "error", err)
			return
		}

		notifications := d.sched.Evaluate(now, alert.Occurrence{
			DisplayName: obj.DisplayName,
			Pass:        pass,
			Windows:     windows,
		})

		for _, n := range notifications {
			d.deliver(ctx, n)
		}
	}
}

// deliver hands one notification to the transport. A send failure is logged
// and counted but not retried; the latch stays set.
func (d *Driver) deliver(ctx context.Context, n alert.Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	if err := d.transport.Send(sendCtx, n); err != nil {
		metrics.RecordNotificationFailure()
		d.logger.Error("notification send failed",
			"object_id", n.ObjectID,
			"kind", string(n.Kind),
			"error", err,
		)
		return
	}

	metrics.RecordNotificationSent(string(n.Kind))
	d.logger.Info("notification sent", "object_id", n.ObjectID, "kind", string(n.Kind))

	if d.hist != nil {
		if err := d.hist.RecordNotification(ctx, n); err != nil {
			d.logger.Warn("history write failed", "error", err)
		}
	}
}

func (d *Driver) recordCompletedPass(ctx context.Context, ev alert.Evicted) {
	if d.hist == nil {
		return
	}
	if err := d.hist.RecordPass(ctx, ev.ObjectID, ev.AOS, ev.LOS); err != nil {
		d.logger.Warn("history write failed", "object_id", ev.ObjectID, "error", err)
	}
}
