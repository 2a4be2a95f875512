package passes

import (
	"fmt"
	"time"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/propagation"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/tle"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/transform"
)

// Pass is one continuous visibility window above the minimum elevation angle.
// AOS (acquisition of signal) is the natural identity of the occurrence:
// two observations of the same pass share the same AOS.
type Pass struct {
	ObjectID string    `json:"object_id"`
	AOS      time.Time `json:"aos"`
	LOS      time.Time `json:"los"`
}

// Duration returns the pass length.
func (p Pass) Duration() time.Duration {
	return p.LOS.Sub(p.AOS)
}

// DefaultMinElevationDeg is the visibility threshold for a pass.
const DefaultMinElevationDeg = 10.0

// Finder turns raw rise/set events into bounded Pass windows.
type Finder struct {
	prop            propagation.Propagator
	minElevationDeg float64
}

// NewFinder creates a Finder. minElevationDeg <= 0 selects the default.
func NewFinder(prop propagation.Propagator, minElevationDeg float64) *Finder {
	if minElevationDeg <= 0 {
		minElevationDeg = DefaultMinElevationDeg
	}
	return &Finder{
		prop:            prop,
		minElevationDeg: minElevationDeg,
	}
}

// Find enumerates the passes for objectID within [start, end], ordered by
// AOS ascending. A pass is only actionable once fully bounded: a trailing
// Rise with no Set inside the horizon is dropped, as is a leading Set with
// no Rise (window already in progress at start). Culmination events do not
// bound windows and are ignored.
//
// Find is a pure function of its inputs: identical elements, observer, and
// horizon yield an identical pass sequence.
func (f *Finder) Find(elements tle.Elements, observer transform.Observer, objectID string, start, end time.Time) ([]Pass, error) {
	events, err := f.prop.Events(elements, observer, start, end, f.minElevationDeg)
	if err != nil {
		return nil, fmt.Errorf("finding events for %s: %w", objectID, err)
	}

	var passes []Pass
	var aos time.Time
	var open bool

	for _, ev := range events {
		switch ev.Kind {
		case propagation.Rise:
			aos = ev.Time
			open = true
		case propagation.Set:
			if !open {
				continue // window began before the horizon; unbounded
			}
			if !ev.Time.After(aos) {
				return nil, fmt.Errorf("invalid pass for %s: LOS %v not after AOS %v", objectID, ev.Time, aos)
			}
			passes = append(passes, Pass{
				ObjectID: objectID,
				AOS:      aos,
				LOS:      ev.Time,
			})
			open = false
		case propagation.Culminate:
			// Culmination does not bound the window.
		}
	}

	return passes, nil
}
