package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/geo"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/passes"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/proximity"
)

// PredictedPass is one upcoming pass with its overhead windows.
type PredictedPass struct {
	Pass            passes.Pass        `json:"pass"`
	OverheadWindows []proximity.Window `json:"overhead_windows"`
}

// Prediction is the on-demand view served by the ops API.
type Prediction struct {
	Object Object          `json:"object"`
	Start  time.Time       `json:"start"`
	End    time.Time       `json:"end"`
	Passes []PredictedPass `json:"passes"`
}

// Position is an object's current sub-point and ground distance to the site.
type Position struct {
	Object         Object    `json:"object"`
	At             time.Time `json:"at"`
	SubPoint       geo.Point `json:"sub_point"`
	GroundDistance float64   `json:"ground_distance_km"`
}

// ErrUnknownObject is returned for catalog ids outside the tracked set.
var ErrUnknownObject = fmt.Errorf("catalog id is not tracked")

func (d *Driver) objectByCatalog(catalogID int) (Object, bool) {
	for _, obj := range d.objects {
		if obj.CatalogID == catalogID {
			return obj, true
		}
	}
	return Object{}, false
}

// Objects returns the tracked set.
func (d *Driver) Objects() []Object {
	out := make([]Object, len(d.objects))
	copy(out, d.objects)
	return out
}

// Upcoming predicts the passes and overhead windows for one tracked object
// over the configured horizon, without touching alert state.
func (d *Driver) Upcoming(ctx context.Context, catalogID int) (Prediction, error) {
	obj, ok := d.objectByCatalog(catalogID)
	if !ok {
		return Prediction{}, fmt.Errorf("%w: %d", ErrUnknownObject, catalogID)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	elements, err := d.source.Fetch(fetchCtx, catalogID)
	if err != nil {
		return Prediction{}, fmt.Errorf("fetching elements for %s: %w", obj.ID, err)
	}

	now := d.now().UTC()
	end := now.Add(d.cfg.Horizon)

	found, err := d.finder.Find(elements, d.observer, obj.ID, now, end)
	if err != nil {
		return Prediction{}, err
	}

	pred := Prediction{Object: obj, Start: now, End: end}
	for _, pass := range found {
		windows, err := d.scanner.Scan(elements, pass)
		if err != nil {
			return Prediction{}, err
		}
		pred.Passes = append(pred.Passes, PredictedPass{
			Pass:            pass,
			OverheadWindows: windows,
		})
	}

	return pred, nil
}

// PositionNow returns one tracked object's current sub-point.
func (d *Driver) PositionNow(ctx context.Context, catalogID int) (Position, error) {
	obj, ok := d.objectByCatalog(catalogID)
	if !ok {
		return Position{}, fmt.Errorf("%w: %d", ErrUnknownObject, catalogID)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	elements, err := d.source.Fetch(fetchCtx, catalogID)
	if err != nil {
		return Position{}, fmt.Errorf("fetching elements for %s: %w", obj.ID, err)
	}

	now := d.now().UTC()
	subPoint, err := d.prop.Position(elements, now)
	if err != nil {
		return Position{}, err
	}

	return Position{
		Object:         obj,
		At:             now,
		SubPoint:       subPoint,
		GroundDistance: geo.DistanceKm(subPoint, d.site),
	}, nil
}
