// Package pantry stores per-user food records and implements oldest-first
// consumption over them.
package pantry

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record id does not exist for the owner.
// Callers treat it as "already removed" rather than a failure.
var ErrNotFound = errors.New("pantry: record not found")

// Record is one stored food item. Quantity is nil when the amount was
// never captured; such records can be deleted whole but never partially
// consumed.
type Record struct {
	ID       int64
	Owner    string
	Name     string
	Quantity *float64
	Unit     string
	StoredAt time.Time
}

// DeductResult summarizes one oldest-first deduction pass.
type DeductResult struct {
	Requested float64
	Consumed  float64
	Remainder float64
	Deleted   int
	Updated   int

	// Remaining is the quantity left on the record after a single-record
	// decrement, read under the same transaction. Zero when the record
	// was deleted; not populated by multi-record passes.
	Remaining float64
}

// Partial reports whether stock ran out before the request was met.
func (r DeductResult) Partial() bool { return r.Remainder > 0 }
