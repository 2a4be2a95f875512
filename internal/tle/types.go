package tle

import (
	"errors"
	"time"
)

// ErrUnavailable indicates that no usable element set could be obtained for a
// satellite. It is a normal, expected outcome (network or upstream outage),
// not a programming error; callers skip the satellite for the current tick.
var ErrUnavailable = errors.New("tle: elements unavailable")

// Elements is a satellite's two-line element set. Treated as an immutable
// value: a refresh produces a new Elements, never a mutation, because a stale
// epoch invalidates every prediction derived from it.
type Elements struct {
	CatalogID int
	Name      string
	Epoch     time.Time
	Line1     string
	Line2     string
}

// Text renders the element set back to 3-line NORAD format.
func (e Elements) Text() string {
	if e.Name == "" {
		return e.Line1 + "\n" + e.Line2 + "\n"
	}
	return e.Name + "\n" + e.Line1 + "\n" + e.Line2 + "\n"
}
