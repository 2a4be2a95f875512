package alert

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/passes"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/proximity"
)

// Kind classifies a notification.
type Kind string

const (
	// KindPrePass announces an upcoming pass ("arriving soon").
	KindPrePass Kind = "pre_pass"
	// KindOverhead announces that the satellite's ground track is inside the
	// proximity radius ("overhead now").
	KindOverhead Kind = "overhead"
)

// Notification is a single alert ready for delivery. Ephemeral: produced,
// handed to the transport, then discarded.
type Notification struct {
	ObjectID   string
	Kind       Kind
	OccurredAt time.Time
	Payload    string
}

// Occurrence is one tick's view of a pass: the bounded window plus any
// overhead sub-windows found inside it.
type Occurrence struct {
	DisplayName string
	Pass        passes.Pass
	Windows     []proximity.Window
}

// Config holds the scheduler tunables. All fields must be positive.
type Config struct {
	// PrePassLead is how long before AOS the pre-pass alert targets.
	PrePassLead time.Duration
	// PrePassTolerance widens the pre-pass firing band so the instant is not
	// missed between polling ticks; set it to the polling interval.
	PrePassTolerance time.Duration
	// OverheadLead is how long before an overhead window the overhead alert
	// targets.
	OverheadLead time.Duration
	// OverheadTolerance widens the overhead firing band.
	OverheadTolerance time.Duration
}

// DefaultConfig mirrors the site alerting rules: 5 min pre-pass lead with a
// one-poll (5 min) tolerance, 1 min overhead lead and tolerance.
func DefaultConfig() Config {
	return Config{
		PrePassLead:       5 * time.Minute,
		PrePassTolerance:  5 * time.Minute,
		OverheadLead:      time.Minute,
		OverheadTolerance: time.Minute,
	}
}

// Validate rejects non-positive tunables. Called once at startup; an invalid
// configuration is fatal there, never at runtime.
func (c Config) Validate() error {
	if c.PrePassLead <= 0 {
		return fmt.Errorf("pre-pass lead must be positive, got %v", c.PrePassLead)
	}
	if c.PrePassTolerance <= 0 {
		return fmt.Errorf("pre-pass tolerance must be positive, got %v", c.PrePassTolerance)
	}
	if c.OverheadLead <= 0 {
		return fmt.Errorf("overhead lead must be positive, got %v", c.OverheadLead)
	}
	if c.OverheadTolerance <= 0 {
		return fmt.Errorf("overhead tolerance must be positive, got %v", c.OverheadTolerance)
	}
	return nil
}

// aosQuantum buckets observed acquisition times. AOS is re-derived every
// tick from a sampled elevation scan, so the same physical pass can be
// observed slightly earlier or later from one tick to the next; bucketing
// maps those observations onto one occurrence. The quantum matches the
// propagator's coarse scan step and must stay well below the shortest
// plausible gap between two passes of the same object.
const aosQuantum = 30 * time.Second

// occurrenceKey identifies one pass occurrence: the object plus the pass's
// acquisition time rounded to aosQuantum.
type occurrenceKey struct {
	objectID string
	aosUnix  int64
}

// occurrenceState holds the two one-shot latches for an occurrence. The
// latches are independent, not sequential: a late scheduler invocation can
// fire overhead before the pre-pass band was ever checked.
type occurrenceState struct {
	prePassFired  bool
	overheadFired bool
	los           time.Time
}

// Evicted describes an occurrence whose state was removed after its LOS
// passed.
type Evicted struct {
	ObjectID string
	AOS      time.Time
	LOS      time.Time
}

// Scheduler owns the only long-lived mutable state in the engine: the
// per-occurrence alert latches. It guarantees at most one PrePass and one
// Overhead notification per occurrence regardless of how many ticks observe
// it. State is process-local; a restart begins with empty latches, which can
// cause at most one duplicate alert pair per occurrence.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	states map[occurrenceKey]*occurrenceState
}

// NewScheduler creates a Scheduler with validated config.
func NewScheduler(cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("alert config: %w", err)
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		states: make(map[occurrenceKey]*occurrenceState),
	}, nil
}

// inBand reports whether now falls within [alertAt, alertAt+tolerance].
func inBand(now, alertAt time.Time, tolerance time.Duration) bool {
	return !now.Before(alertAt) && !now.After(alertAt.Add(tolerance))
}

// lookup resolves the state for an observed acquisition time, tolerating
// jitter that rounds into a neighbouring bucket. Returns a nil state with
// the key to create when no occurrence matches. Caller holds mu.
func (s *Scheduler) lookup(objectID string, aos time.Time) (occurrenceKey, *occurrenceState) {
	key := occurrenceKey{objectID: objectID, aosUnix: aos.Round(aosQuantum).Unix()}
	if state, ok := s.states[key]; ok {
		return key, state
	}
	step := int64(aosQuantum / time.Second)
	for _, delta := range []int64{-step, step} {
		neighbour := occurrenceKey{objectID: objectID, aosUnix: key.aosUnix + delta}
		if state, ok := s.states[neighbour]; ok {
			return neighbour, state
		}
	}
	return key, nil
}

// Evaluate runs one tick's checks for a single occurrence and returns the
// notifications to deliver. Latches are set at emission time, before the
// transport runs: a failed send does not re-arm the alert.
func (s *Scheduler) Evaluate(now time.Time, occ Occurrence) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, state := s.lookup(occ.Pass.ObjectID, occ.Pass.AOS)
	if state == nil {
		state = &occurrenceState{los: occ.Pass.LOS}
		s.states[key] = state
	} else {
		// The latest LOS estimate governs eviction.
		state.los = occ.Pass.LOS
	}

	var out []Notification

	// Pre-pass check.
	if !state.prePassFired {
		alertAt := occ.Pass.AOS.Add(-s.cfg.PrePassLead)
		if inBand(now, alertAt, s.cfg.PrePassTolerance) {
			state.prePassFired = true
			out = append(out, Notification{
				ObjectID:   occ.Pass.ObjectID,
				Kind:       KindPrePass,
				OccurredAt: now,
				Payload:    prePassPayload(occ),
			})
		}
	}

	// Overhead check: first crossing wins. A pass may dip below the radius
	// and come back, but repeated alerts within one occurrence are
	// suppressed.
	if !state.overheadFired {
		for _, w := range occ.Windows {
			alertAt := w.Start.Add(-s.cfg.OverheadLead)
			if inBand(now, alertAt, s.cfg.OverheadTolerance) {
				state.overheadFired = true
				out = append(out, Notification{
					ObjectID:   occ.Pass.ObjectID,
					Kind:       KindOverhead,
					OccurredAt: now,
					Payload:    overheadPayload(occ, w),
				})
				break
			}
		}
	}

	return out
}

// Sweep evicts every occurrence whose LOS is in the past and returns them,
// bounding memory to active and recently-completed passes.
func (s *Scheduler) Sweep(now time.Time) []Evicted {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []Evicted
	for key, state := range s.states {
		if now.After(state.los) {
			evicted = append(evicted, Evicted{
				ObjectID: key.objectID,
				AOS:      time.Unix(key.aosUnix, 0).UTC(),
				LOS:      state.los,
			})
			delete(s.states, key)
		}
	}

	if len(evicted) > 0 {
		s.logger.Debug("evicted completed pass occurrences", "count", len(evicted))
	}
	return evicted
}

// StateCount returns the number of live occurrence states.
func (s *Scheduler) StateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func displayName(occ Occurrence) string {
	if occ.DisplayName != "" {
		return occ.DisplayName
	}
	return occ.Pass.ObjectID
}

func prePassPayload(occ Occurrence) string {
	return fmt.Sprintf("🛰️ %s pass starting soon\n• Start: %s\n• End: %s\n• Duration: %d min",
		displayName(occ),
		occ.Pass.AOS.UTC().Format("2006-01-02 15:04:05 UTC"),
		occ.Pass.LOS.UTC().Format("2006-01-02 15:04:05 UTC"),
		int(occ.Pass.Duration().Minutes()),
	)
}

func overheadPayload(occ Occurrence, w proximity.Window) string {
	return fmt.Sprintf("🛰️ %s is OVERHEAD NOW\n• From: %s\n• To: %s\n• Closest approach: %.1f km\n• Altitude: %.0f km",
		displayName(occ),
		w.Start.UTC().Format("2006-01-02 15:04:05 UTC"),
		w.End.UTC().Format("2006-01-02 15:04:05 UTC"),
		w.ClosestKm,
		w.ClosestSubPoint.AltKm,
	)
}
