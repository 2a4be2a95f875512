package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/alert"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/geo"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/history"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/passes"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/propagation"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/proximity"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/tle"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/transform"
)

var (
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	testSite   = geo.Point{LatDeg: 35.7025, LonDeg: -0.621389}
	baseTime   = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
)

// fixedSource serves static elements per catalog id and fails for ids in the
// down set.
type fixedSource struct {
	mu    sync.Mutex
	down  map[int]bool
	calls int
}

func (s *fixedSource) Fetch(ctx context.Context, catalogID int) (tle.Elements, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.down[catalogID] {
		return tle.Elements{}, fmt.Errorf("%w: upstream down", tle.ErrUnavailable)
	}
	return tle.Elements{CatalogID: catalogID}, nil
}

// orbitScript drives both the pass geometry and the ground track: Events
// replays the scripted rise/set pairs, Position is near the site inside
// [nearFrom, nearTo] and far away otherwise.
type orbitScript struct {
	events   []propagation.Event
	nearFrom time.Time
	nearTo   time.Time
}

func (o *orbitScript) Position(_ tle.Elements, at time.Time) (geo.Point, error) {
	if !o.nearFrom.IsZero() && !at.Before(o.nearFrom) && !at.After(o.nearTo) {
		return geo.Point{LatDeg: testSite.LatDeg + 0.02, LonDeg: testSite.LonDeg}, nil
	}
	return geo.Point{LatDeg: -40, LonDeg: 120}, nil
}

func (o *orbitScript) Events(_ tle.Elements, _ transform.Observer, start, end time.Time, _ float64) ([]propagation.Event, error) {
	var out []propagation.Event
	for _, ev := range o.events {
		if !ev.Time.Before(start) && !ev.Time.After(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// jitterOrbit replays one completed pass whose rise/set times shift by a few
// hundred milliseconds on every prediction, the way a sampled elevation scan
// re-derives them each tick.
type jitterOrbit struct {
	rise time.Time
	set  time.Time

	mu    sync.Mutex
	calls int
}

func (o *jitterOrbit) Position(tle.Elements, time.Time) (geo.Point, error) {
	return geo.Point{LatDeg: -40, LonDeg: 120}, nil
}

func (o *jitterOrbit) Events(_ tle.Elements, _ transform.Observer, start, end time.Time, _ float64) ([]propagation.Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	shift := time.Duration(o.calls%3-1) * 700 * time.Millisecond

	var out []propagation.Event
	for _, ev := range []propagation.Event{
		{Kind: propagation.Rise, Time: o.rise.Add(shift)},
		{Kind: propagation.Set, Time: o.set.Add(shift)},
	} {
		if !ev.Time.Before(start) && !ev.Time.After(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// captureTransport records deliveries and optionally fails them.
type captureTransport struct {
	mu       sync.Mutex
	sent     []alert.Notification
	fail     bool
	attempts int
}

func (t *captureTransport) Send(ctx context.Context, n alert.Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	if t.fail {
		return errors.New("transport down")
	}
	t.sent = append(t.sent, n)
	return nil
}

func (t *captureTransport) kinds() []alert.Kind {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ks []alert.Kind
	for _, n := range t.sent {
		ks = append(ks, n.Kind)
	}
	return ks
}

func testDriver(t *testing.T, objects []Object, source tle.Source, prop propagation.Propagator, transport *captureTransport) *Driver {
	t.Helper()

	sched, err := alert.NewScheduler(alert.Config{
		PrePassLead:       5 * time.Minute,
		PrePassTolerance:  5 * time.Minute,
		OverheadLead:      time.Minute,
		OverheadTolerance: time.Minute,
	}, testLogger)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	finder := newTestFinder(prop)
	scanner := proximity.NewScanner(prop, testSite, 10, 30*time.Second)

	driver, err := NewDriver(DefaultConfig(), testSite, objects, source, prop, finder, scanner, sched, transport, nil, testLogger)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return driver
}

// newTestFinder uses the default elevation threshold.
func newTestFinder(prop propagation.Propagator) *passes.Finder {
	return passes.NewFinder(prop, 0)
}

func TestTickDeliversPrePass(t *testing.T) {
	// AOS in 4 minutes: the first tick lands inside the pre-pass band.
	prop := &orbitScript{events: []propagation.Event{
		{Kind: propagation.Rise, Time: baseTime.Add(4 * time.Minute)},
		{Kind: propagation.Set, Time: baseTime.Add(12 * time.Minute)},
	}}
	transport := &captureTransport{}
	driver := testDriver(t, []Object{{ID: "ALSAT-1", DisplayName: "ALSAT-1", CatalogID: 27559}}, &fixedSource{}, prop, transport)
	driver.now = func() time.Time { return baseTime }

	driver.Tick(context.Background())

	ks := transport.kinds()
	if len(ks) != 1 || ks[0] != alert.KindPrePass {
		t.Fatalf("sent %v, want exactly one pre-pass", ks)
	}
}

func TestTickAtMostOnceAcrossTicks(t *testing.T) {
	prop := &orbitScript{events: []propagation.Event{
		{Kind: propagation.Rise, Time: baseTime.Add(4 * time.Minute)},
		{Kind: propagation.Set, Time: baseTime.Add(12 * time.Minute)},
	}}
	transport := &captureTransport{}
	driver := testDriver(t, []Object{{ID: "ALSAT-1", CatalogID: 27559}}, &fixedSource{}, prop, transport)

	current := baseTime
	driver.now = func() time.Time { return current }

	// Several ticks while the band stays open.
	for i := 0; i < 5; i++ {
		driver.Tick(context.Background())
		current = current.Add(30 * time.Second)
	}

	if ks := transport.kinds(); len(ks) != 1 {
		t.Errorf("sent %v across repeated ticks, want one pre-pass", ks)
	}
}

func TestTickDeliversOverhead(t *testing.T) {
	// Pass in progress with an overhead window opening at +6m. The tick at
	// +5m30s is inside the overhead band [+5m, +6m].
	prop := &orbitScript{
		events: []propagation.Event{
			{Kind: propagation.Rise, Time: baseTime.Add(4 * time.Minute)},
			{Kind: propagation.Set, Time: baseTime.Add(12 * time.Minute)},
		},
		nearFrom: baseTime.Add(6 * time.Minute),
		nearTo:   baseTime.Add(7 * time.Minute),
	}
	transport := &captureTransport{}
	driver := testDriver(t, []Object{{ID: "ALSAT-1", CatalogID: 27559}}, &fixedSource{}, prop, transport)

	current := baseTime
	driver.now = func() time.Time { return current }
	driver.Tick(context.Background()) // pre-pass fires here

	current = baseTime.Add(5*time.Minute + 30*time.Second)
	driver.Tick(context.Background())

	ks := transport.kinds()
	if len(ks) != 2 || ks[0] != alert.KindPrePass || ks[1] != alert.KindOverhead {
		t.Fatalf("sent %v, want pre-pass then overhead", ks)
	}
}

func TestTickObjectErrorIsolation(t *testing.T) {
	// One satellite's elements are unavailable; the other still alerts.
	prop := &orbitScript{events: []propagation.Event{
		{Kind: propagation.Rise, Time: baseTime.Add(4 * time.Minute)},
		{Kind: propagation.Set, Time: baseTime.Add(12 * time.Minute)},
	}}
	source := &fixedSource{down: map[int]bool{27559: true}}
	transport := &captureTransport{}
	driver := testDriver(t, []Object{
		{ID: "ALSAT-1", CatalogID: 27559},
		{ID: "ALSAT-2A", CatalogID: 36798},
	}, source, prop, transport)
	driver.now = func() time.Time { return baseTime }

	driver.Tick(context.Background())

	ks := transport.kinds()
	if len(ks) != 1 {
		t.Fatalf("sent %v, want one alert from the healthy object", ks)
	}
	if transport.sent[0].ObjectID != "ALSAT-2A" {
		t.Errorf("alert from %q, want ALSAT-2A", transport.sent[0].ObjectID)
	}
}

func TestTickSendFailureDoesNotRearm(t *testing.T) {
	prop := &orbitScript{events: []propagation.Event{
		{Kind: propagation.Rise, Time: baseTime.Add(4 * time.Minute)},
		{Kind: propagation.Set, Time: baseTime.Add(12 * time.Minute)},
	}}
	transport := &captureTransport{fail: true}
	driver := testDriver(t, []Object{{ID: "ALSAT-1", CatalogID: 27559}}, &fixedSource{}, prop, transport)

	current := baseTime
	driver.now = func() time.Time { return current }

	driver.Tick(context.Background())
	transport.mu.Lock()
	attempts := transport.attempts
	transport.fail = false
	transport.mu.Unlock()

	if attempts != 1 {
		t.Fatalf("attempts = %d after first tick, want 1", attempts)
	}

	// Transport recovers, band still open: the latch must hold.
	current = current.Add(time.Minute)
	driver.Tick(context.Background())

	if ks := transport.kinds(); len(ks) != 0 {
		t.Errorf("sent %v after recovery, want none (alert is one-shot)", ks)
	}
}

func TestTickSweepsCompletedPasses(t *testing.T) {
	prop := &orbitScript{events: []propagation.Event{
		{Kind: propagation.Rise, Time: baseTime.Add(4 * time.Minute)},
		{Kind: propagation.Set, Time: baseTime.Add(12 * time.Minute)},
	}}
	transport := &captureTransport{}
	driver := testDriver(t, []Object{{ID: "ALSAT-1", CatalogID: 27559}}, &fixedSource{}, prop, transport)

	current := baseTime
	driver.now = func() time.Time { return current }
	driver.Tick(context.Background())

	if got := driver.sched.StateCount(); got != 1 {
		t.Fatalf("state count = %d after first tick, want 1", got)
	}

	// Past LOS the pass drops out of the horizon and its state is evicted.
	current = baseTime.Add(13 * time.Minute)
	driver.Tick(context.Background())

	if got := driver.sched.StateCount(); got != 0 {
		t.Errorf("state count = %d after LOS, want 0", got)
	}
}

func TestCompletedPassRecordsOneHistoryRow(t *testing.T) {
	// A pass that completed 20 minutes ago sits inside the lookback: every
	// tick re-observes it with slightly shifted times and re-evicts it.
	// History must still hold a single row for it.
	prop := &jitterOrbit{
		rise: baseTime.Add(-20 * time.Minute),
		set:  baseTime.Add(-12 * time.Minute),
	}

	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer hist.Close()

	sched, err := alert.NewScheduler(alert.Config{
		PrePassLead:       5 * time.Minute,
		PrePassTolerance:  5 * time.Minute,
		OverheadLead:      time.Minute,
		OverheadTolerance: time.Minute,
	}, testLogger)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	finder := newTestFinder(prop)
	scanner := proximity.NewScanner(prop, testSite, 10, 30*time.Second)
	driver, err := NewDriver(DefaultConfig(), testSite,
		[]Object{{ID: "ALSAT-1", CatalogID: 27559}},
		&fixedSource{}, prop, finder, scanner, sched, &captureTransport{}, hist, testLogger)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	driver.now = func() time.Time { return baseTime }

	for i := 0; i < 5; i++ {
		driver.Tick(context.Background())
	}

	recs, err := hist.RecentPasses(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentPasses: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d history rows for one completed pass, want 1", len(recs))
	}
	if !recs[0].AOS.Equal(baseTime.Add(-20 * time.Minute)) {
		t.Errorf("recorded AOS = %v, want %v", recs[0].AOS, baseTime.Add(-20*time.Minute))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	prop := &orbitScript{}
	transport := &captureTransport{}
	driver := testDriver(t, []Object{{ID: "ALSAT-1", CatalogID: 27559}}, &fixedSource{}, prop, transport)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		driver.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestNewDriverValidation(t *testing.T) {
	prop := &orbitScript{}
	sched, err := alert.NewScheduler(alert.DefaultConfig(), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	finder := newTestFinder(prop)
	scanner := proximity.NewScanner(prop, testSite, 10, 30*time.Second)

	badCfg := DefaultConfig()
	badCfg.Cadence = 0
	if _, err := NewDriver(badCfg, testSite, nil, &fixedSource{}, prop, finder, scanner, sched, &captureTransport{}, nil, testLogger); err == nil {
		t.Error("zero cadence accepted")
	}

	badSite := geo.Point{LatDeg: 95, LonDeg: 0}
	if _, err := NewDriver(DefaultConfig(), badSite, nil, &fixedSource{}, prop, finder, scanner, sched, &captureTransport{}, nil, testLogger); err == nil {
		t.Error("invalid site accepted")
	}
}

func TestUpcoming(t *testing.T) {
	prop := &orbitScript{
		events: []propagation.Event{
			{Kind: propagation.Rise, Time: baseTime.Add(4 * time.Minute)},
			{Kind: propagation.Set, Time: baseTime.Add(12 * time.Minute)},
		},
		nearFrom: baseTime.Add(6 * time.Minute),
		nearTo:   baseTime.Add(7 * time.Minute),
	}
	transport := &captureTransport{}
	driver := testDriver(t, []Object{{ID: "ALSAT-1", CatalogID: 27559}}, &fixedSource{}, prop, transport)
	driver.now = func() time.Time { return baseTime }

	pred, err := driver.Upcoming(context.Background(), 27559)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pred.Passes) != 1 {
		t.Fatalf("got %d passes, want 1", len(pred.Passes))
	}
	if len(pred.Passes[0].OverheadWindows) != 1 {
		t.Errorf("got %d overhead windows, want 1", len(pred.Passes[0].OverheadWindows))
	}

	// On-demand queries never touch alert state.
	if got := driver.sched.StateCount(); got != 0 {
		t.Errorf("state count = %d after query, want 0", got)
	}
	if len(transport.kinds()) != 0 {
		t.Error("query delivered notifications")
	}
}

func TestUpcomingUnknownObject(t *testing.T) {
	driver := testDriver(t, []Object{{ID: "ALSAT-1", CatalogID: 27559}}, &fixedSource{}, &orbitScript{}, &captureTransport{})

	if _, err := driver.Upcoming(context.Background(), 99999); !errors.Is(err, ErrUnknownObject) {
		t.Errorf("expected ErrUnknownObject, got: %v", err)
	}
}

func TestPositionNow(t *testing.T) {
	prop := &orbitScript{nearFrom: baseTime.Add(-time.Minute), nearTo: baseTime.Add(time.Minute)}
	driver := testDriver(t, []Object{{ID: "ALSAT-1", CatalogID: 27559}}, &fixedSource{}, prop, &captureTransport{})
	driver.now = func() time.Time { return baseTime }

	pos, err := driver.PositionNow(context.Background(), 27559)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.Object.CatalogID != 27559 {
		t.Errorf("catalog id = %d, want 27559", pos.Object.CatalogID)
	}
	// The script puts the sub-point ~2 km from the site.
	if pos.GroundDistance < 1 || pos.GroundDistance > 5 {
		t.Errorf("ground distance = %.2f km, want ~2 km", pos.GroundDistance)
	}
}
