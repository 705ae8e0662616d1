package catalog

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownSatellite reports a propagation request for an identity that
// is not in the loaded snapshot.
var ErrUnknownSatellite = errors.New("satellite not in catalog")

// LoadError is fatal: no orbital elements could be obtained from any
// source, so the run cannot produce estimates.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("catalog load from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PropagationError reports that one satellite could not be propagated to
// one instant. It excludes that satellite from that instant's candidacy
// and is never fatal.
type PropagationError struct {
	ID  string
	At  time.Time
	Err error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagate %s at %s: %v", e.ID, e.At.Format(time.RFC3339), e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }
