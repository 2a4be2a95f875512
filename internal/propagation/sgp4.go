package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/geo"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/tle"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Selected for: most community adoption, pure Go (no CGO), battle-tested
// since 2016, explicit ECI output with ECIToECEF/JDay/ThetaG_JD helpers.
//
// Note: Propagate() takes Satellite by value so SGP4 error codes are not
// visible to the caller. We detect propagation failures by checking output
// for NaN/Inf and unreasonable position magnitudes.

const (
	// coarseStep is the scan cadence for bracketing elevation crossings.
	// LEO passes last several minutes, so 30 s cannot step over one.
	coarseStep = 30 * time.Second
	// crossingTolerance is the bisection stop condition for rise/set times.
	crossingTolerance = time.Second
)

// SGP4 implements Propagator on top of go-satellite.
type SGP4 struct{}

// NewSGP4 returns the SGP4-backed Propagator.
func NewSGP4() *SGP4 {
	return &SGP4{}
}

// newSatellite initializes the SGP4 model from an element set.
//
// Pre-validates TLE format before passing to the library, because
// go-satellite calls log.Fatal on malformed input (which would kill the
// process).
func newSatellite(elements tle.Elements) (satellite.Satellite, error) {
	if err := validateTLELines(elements.Line1, elements.Line2); err != nil {
		return satellite.Satellite{}, fmt.Errorf("invalid TLE for catalog %d: %w", elements.CatalogID, err)
	}

	sat := satellite.TLEToSat(elements.Line1, elements.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return satellite.Satellite{}, fmt.Errorf("sgp4 init failed for catalog %d: code=%d %s",
			elements.CatalogID, sat.Error, sat.ErrorStr)
	}
	return sat, nil
}

// validateTLELines performs basic format validation on TLE lines.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// ecefAt propagates the satellite to t and returns its ECEF position in km.
func ecefAt(sat satellite.Satellite, catalogID int, t time.Time) (satellite.Vector3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)

	if math.IsNaN(posECI.X) || math.IsNaN(posECI.Y) || math.IsNaN(posECI.Z) ||
		math.IsInf(posECI.X, 0) || math.IsInf(posECI.Y, 0) || math.IsInf(posECI.Z, 0) {
		return satellite.Vector3{}, fmt.Errorf("sgp4 propagation failed for catalog %d: output is NaN/Inf", catalogID)
	}

	// Sanity check: position magnitude should be between ~6200km and ~50000km.
	mag := math.Sqrt(posECI.X*posECI.X + posECI.Y*posECI.Y + posECI.Z*posECI.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return satellite.Vector3{}, fmt.Errorf("sgp4 propagation failed for catalog %d: unreasonable position magnitude %.1f km", catalogID, mag)
	}

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	return satellite.ECIToECEF(posECI, gmst), nil
}

// Position implements Propagator.
func (p *SGP4) Position(elements tle.Elements, at time.Time) (geo.Point, error) {
	sat, err := newSatellite(elements)
	if err != nil {
		return geo.Point{}, err
	}

	ecef, err := ecefAt(sat, elements.CatalogID, at)
	if err != nil {
		return geo.Point{}, err
	}

	return transform.ECEFToGeodetic(ecef.X, ecef.Y, ecef.Z), nil
}

// Events implements Propagator. It brackets elevation threshold crossings
// with a coarse scan, then refines each crossing by bisection.
func (p *SGP4) Events(elements tle.Elements, observer transform.Observer, start, end time.Time, minElevationDeg float64) ([]Event, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("invalid event range: end %v not after start %v", end, start)
	}

	sat, err := newSatellite(elements)
	if err != nil {
		return nil, err
	}

	elevation := func(t time.Time) (float64, error) {
		ecef, err := ecefAt(sat, elements.CatalogID, t)
		if err != nil {
			return 0, err
		}
		return transform.ECEFToLookAngles(observer, ecef.X, ecef.Y, ecef.Z).ElevationDeg, nil
	}

	startEl, err := elevation(start)
	if err != nil {
		return nil, err
	}

	var events []Event
	prevT := start
	above := startEl >= minElevationDeg
	windowStart := start // rise time of the current window, or range start

	for t := start.Add(coarseStep); ; t = t.Add(coarseStep) {
		if t.After(end) {
			t = end
		}

		el, err := elevation(t)
		if err != nil {
			return nil, err
		}

		if !above && el >= minElevationDeg {
			rise := bisectCrossing(elevation, prevT, t, minElevationDeg, true)
			events = append(events, Event{Kind: Rise, Time: rise})
			windowStart = rise
			above = true
		} else if above && el < minElevationDeg {
			set := bisectCrossing(elevation, prevT, t, minElevationDeg, false)
			culm := peakElevation(elevation, windowStart, set)
			events = append(events, Event{Kind: Culminate, Time: culm}, Event{Kind: Set, Time: set})
			above = false
		}

		if t.Equal(end) {
			break
		}
		prevT = t
	}

	return events, nil
}

// bisectCrossing narrows the instant the elevation crosses threshold between
// lo and hi. rising selects the direction of the crossing. Propagation errors
// during refinement fall back to the midpoint; the bracketing samples already
// succeeded, so the window itself is sound.
func bisectCrossing(elevation func(time.Time) (float64, error), lo, hi time.Time, threshold float64, rising bool) time.Time {
	for hi.Sub(lo) > crossingTolerance {
		mid := lo.Add(hi.Sub(lo) / 2)
		el, err := elevation(mid)
		if err != nil {
			return mid
		}

		if (rising && el < threshold) || (!rising && el >= threshold) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

// peakElevation locates the maximum-elevation instant within [start, end]
// with a coarse sweep followed by a fine sweep around the best sample.
func peakElevation(elevation func(time.Time) (float64, error), start, end time.Time) time.Time {
	const steps = 64

	span := end.Sub(start)
	if span <= 0 {
		return start
	}
	dt := span / steps
	if dt < time.Second {
		dt = time.Second
	}

	best := start
	bestEl := -90.0
	for t := start; !t.After(end); t = t.Add(dt) {
		el, err := elevation(t)
		if err != nil {
			continue
		}
		if el > bestEl {
			bestEl = el
			best = t
		}
	}

	// Fine sweep around the coarse maximum.
	fineLo := best.Add(-dt)
	if fineLo.Before(start) {
		fineLo = start
	}
	fineHi := best.Add(dt)
	if fineHi.After(end) {
		fineHi = end
	}
	fineDt := dt / 10
	if fineDt < time.Second {
		fineDt = time.Second
	}
	for t := fineLo; !t.After(fineHi); t = t.Add(fineDt) {
		el, err := elevation(t)
		if err != nil {
			continue
		}
		if el > bestEl {
			bestEl = el
			best = t
		}
	}

	return best
}
