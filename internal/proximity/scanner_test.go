package proximity

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/geo"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/passes"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/propagation"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/tle"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/transform"
)

var site = geo.Point{LatDeg: 35.7025, LonDeg: -0.621389}

// trackPropagator returns a scripted sub-point per sample time.
type trackPropagator struct {
	points map[time.Time]geo.Point
	err    error
}

func (p *trackPropagator) Position(_ tle.Elements, at time.Time) (geo.Point, error) {
	if p.err != nil {
		return geo.Point{}, p.err
	}
	if pt, ok := p.points[at]; ok {
		return pt, nil
	}
	// Anywhere far away.
	return geo.Point{LatDeg: -35, LonDeg: 150}, nil
}

func (p *trackPropagator) Events(tle.Elements, transform.Observer, time.Time, time.Time, float64) ([]propagation.Event, error) {
	return nil, nil
}

var aos = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func samplePass(minutes int) passes.Pass {
	return passes.Pass{
		ObjectID: "ALSAT-1",
		AOS:      aos,
		LOS:      aos.Add(time.Duration(minutes) * time.Minute),
	}
}

// nearSite returns a point at roughly the given ground distance from the site.
func nearSite(km float64) geo.Point {
	// One degree of latitude is ~111.2 km.
	return geo.Point{LatDeg: site.LatDeg + km/111.2, LonDeg: site.LonDeg}
}

func TestScanCoalescesConsecutiveSamples(t *testing.T) {
	prop := &trackPropagator{points: map[time.Time]geo.Point{
		aos.Add(60 * time.Second):  nearSite(5),
		aos.Add(90 * time.Second):  nearSite(2),
		aos.Add(120 * time.Second): nearSite(6),
	}}

	scanner := NewScanner(prop, site, 10, 30*time.Second)
	windows, err := scanner.Scan(tle.Elements{}, samplePass(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1 coalesced window", len(windows))
	}
	if !windows[0].Start.Equal(aos.Add(60 * time.Second)) {
		t.Errorf("window start = %v, want %v", windows[0].Start, aos.Add(60*time.Second))
	}
	if !windows[0].End.Equal(aos.Add(120 * time.Second)) {
		t.Errorf("window end = %v, want %v", windows[0].End, aos.Add(120*time.Second))
	}
	// Closest approach is the 2 km sample at +90s.
	wantClosest := geo.DistanceKm(nearSite(2), site)
	if math.Abs(windows[0].ClosestKm-wantClosest) > 1e-9 {
		t.Errorf("closest distance = %v, want %v", windows[0].ClosestKm, wantClosest)
	}
	if windows[0].ClosestSubPoint != nearSite(2) {
		t.Errorf("closest sub-point = %+v, want %+v", windows[0].ClosestSubPoint, nearSite(2))
	}
}

func TestScanSplitsSeparatedWindows(t *testing.T) {
	prop := &trackPropagator{points: map[time.Time]geo.Point{
		aos:                        nearSite(3),
		aos.Add(180 * time.Second): nearSite(4),
	}}

	scanner := NewScanner(prop, site, 10, 30*time.Second)
	windows, err := scanner.Scan(tle.Elements{}, samplePass(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2 separated windows", len(windows))
	}
	// A single-sample window has Start == End.
	if !windows[0].Start.Equal(windows[0].End) {
		t.Errorf("single-sample window = [%v, %v], want equal bounds", windows[0].Start, windows[0].End)
	}
}

func TestScanRadiusBoundaryIsExclusive(t *testing.T) {
	// A sample exactly on the radius must not count as overhead.
	exact := nearSite(10)
	d := geo.DistanceKm(exact, site)

	prop := &trackPropagator{points: map[time.Time]geo.Point{
		aos.Add(60 * time.Second): exact,
	}}

	scanner := NewScanner(prop, site, d, 30*time.Second)
	windows, err := scanner.Scan(tle.Elements{}, samplePass(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("distance equal to radius produced %d windows, want 0", len(windows))
	}

	// Strictly inside fires.
	scanner = NewScanner(prop, site, d+0.001, 30*time.Second)
	windows, err = scanner.Scan(tle.Elements{}, samplePass(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 1 {
		t.Errorf("distance strictly below radius produced %d windows, want 1", len(windows))
	}
}

func TestScanNaNIsNotOverhead(t *testing.T) {
	// A malformed sub-point in the middle of a window closes it.
	prop := &trackPropagator{points: map[time.Time]geo.Point{
		aos.Add(60 * time.Second):  nearSite(2),
		aos.Add(90 * time.Second):  {LatDeg: math.NaN(), LonDeg: math.NaN()},
		aos.Add(120 * time.Second): nearSite(2),
	}}

	scanner := NewScanner(prop, site, 10, 30*time.Second)
	windows, err := scanner.Scan(tle.Elements{}, samplePass(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2 (NaN sample splits the window)", len(windows))
	}
}

func TestScanNoProximity(t *testing.T) {
	scanner := NewScanner(&trackPropagator{}, site, 10, 30*time.Second)
	windows, err := scanner.Scan(tle.Elements{}, samplePass(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("got %d windows for a distant track, want 0", len(windows))
	}
}

func TestScanWindowOpenAtLOS(t *testing.T) {
	// Overhead at the final sample: the window closes at LOS.
	prop := &trackPropagator{points: map[time.Time]geo.Point{
		aos.Add(270 * time.Second): nearSite(2),
		aos.Add(300 * time.Second): nearSite(1),
	}}

	scanner := NewScanner(prop, site, 10, 30*time.Second)
	windows, err := scanner.Scan(tle.Elements{}, samplePass(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(windows))
	}
	if !windows[0].End.Equal(aos.Add(300 * time.Second)) {
		t.Errorf("window end = %v, want the LOS sample %v", windows[0].End, aos.Add(300*time.Second))
	}
}

func TestScanPropagatorError(t *testing.T) {
	wantErr := errors.New("bad elements")
	scanner := NewScanner(&trackPropagator{err: wantErr}, site, 10, 30*time.Second)

	if _, err := scanner.Scan(tle.Elements{}, samplePass(5)); !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped propagator error, got: %v", err)
	}
}
