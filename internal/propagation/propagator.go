package propagation

import (
	"time"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/geo"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/tle"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/transform"
)

// EventKind tags a visibility event relative to the minimum elevation angle.
type EventKind int

const (
	// Rise marks the instant the satellite climbs above the minimum elevation.
	Rise EventKind = iota
	// Culminate marks the maximum elevation within a visibility window.
	Culminate
	// Set marks the instant the satellite drops below the minimum elevation.
	Set
)

func (k EventKind) String() string {
	switch k {
	case Rise:
		return "rise"
	case Culminate:
		return "culminate"
	case Set:
		return "set"
	default:
		return "unknown"
	}
}

// Event is a single visibility event.
type Event struct {
	Kind EventKind
	Time time.Time
}

// Propagator is the orbital-mechanics contract consumed by the prediction
// engine. Implementations must fail explicitly on malformed elements instead
// of silently returning zero positions.
type Propagator interface {
	// Position returns the satellite's sub-point (geodetic latitude,
	// longitude, altitude) at the given UTC instant.
	Position(elements tle.Elements, at time.Time) (geo.Point, error)

	// Events returns the ordered rise/culmination/set events for the
	// satellite as seen from the observer within [start, end], relative to
	// minElevationDeg. A window already in progress at start yields no Rise;
	// a window cut off by end yields no Set.
	Events(elements tle.Elements, observer transform.Observer, start, end time.Time, minElevationDeg float64) ([]Event, error)
}
