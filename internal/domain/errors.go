package domain

import (
	"fmt"
	"time"
)

// InvalidWeightError reports a factor weight outside [0, 1]. It is raised
// when the factor engine is configured, never during scoring.
type InvalidWeightError struct {
	Factor string
	Weight float64
}

func (e *InvalidWeightError) Error() string {
	return fmt.Sprintf("factor %q: weight %v outside [0, 1]", e.Factor, e.Weight)
}

// DataIntegrityError reports a held position that cannot be valued: no close
// exists on the given date and no prior close is available to carry forward.
// It aborts the run.
type DataIntegrityError struct {
	Symbol string
	Date   time.Time
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("no usable close for %s on or before %s", e.Symbol, e.Date.Format("2006-01-02"))
}

// EmptyUniverseError reports a simulation started with zero instruments.
type EmptyUniverseError struct{}

func (e *EmptyUniverseError) Error() string {
	return "instrument universe is empty"
}
