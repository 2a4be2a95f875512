package proximity

import (
	"fmt"
	"time"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/geo"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/passes"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/propagation"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/tle"
)

// Window is a sub-interval of a pass during which the satellite's ground
// track stays within the proximity radius of the site. Start and End are
// sample times; accuracy is bounded by the sample step.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// ClosestSubPoint and ClosestKm describe the minimum-distance sample of
	// the window.
	ClosestSubPoint geo.Point `json:"closest_sub_point"`
	ClosestKm       float64   `json:"closest_km"`
}

// Defaults per the site alerting rules.
const (
	DefaultRadiusKm   = 10.0
	DefaultSampleStep = 30 * time.Second
)

// Scanner samples a pass at fixed cadence and coalesces consecutive
// within-radius samples into Windows. Stateless; a pure function of its
// inputs. The sample step is an accuracy/cost trade-off: coarser steps may
// merge or split true windows.
type Scanner struct {
	prop     propagation.Propagator
	site     geo.Point
	radiusKm float64
	step     time.Duration
}

// NewScanner creates a Scanner. radiusKm <= 0 and step <= 0 select defaults.
func NewScanner(prop propagation.Propagator, site geo.Point, radiusKm float64, step time.Duration) *Scanner {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	if step <= 0 {
		step = DefaultSampleStep
	}
	return &Scanner{
		prop:     prop,
		site:     site,
		radiusKm: radiusKm,
		step:     step,
	}
}

// Scan samples the closed interval [AOS, LOS] and returns the ordered
// overhead windows, possibly none.
//
// A sample counts as overhead only when its ground distance is strictly
// below the radius; a distance exactly equal to the radius is not overhead.
// A NaN distance (malformed sub-point) means "distance unknown" and is
// excluded from proximity, closing any open window.
func (s *Scanner) Scan(elements tle.Elements, pass passes.Pass) ([]Window, error) {
	var windows []Window
	var open bool
	var winStart, winLast time.Time
	var closest geo.Point
	var closestKm float64

	for t := pass.AOS; !t.After(pass.LOS); t = t.Add(s.step) {
		subPoint, err := s.prop.Position(elements, t)
		if err != nil {
			return nil, fmt.Errorf("scanning pass at %v: %w", t, err)
		}

		dist := geo.DistanceKm(subPoint, s.site)
		overhead := dist < s.radiusKm // NaN compares false: not overhead

		if overhead {
			if !open {
				winStart = t
				open = true
				closest = subPoint
				closestKm = dist
			} else if dist < closestKm {
				closest = subPoint
				closestKm = dist
			}
			winLast = t
			continue
		}

		if open {
			windows = append(windows, Window{
				Start:           winStart,
				End:             winLast,
				ClosestSubPoint: closest,
				ClosestKm:       closestKm,
			})
			open = false
		}
	}

	if open {
		windows = append(windows, Window{
			Start:           winStart,
			End:             winLast,
			ClosestSubPoint: closest,
			ClosestKm:       closestKm,
		})
	}

	return windows, nil
}
