package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// TimeRange is a closed acquisition time interval.
type TimeRange struct {
	Begin time.Time
	End   time.Time
}

// NewTimeRange orders the two timestamps into a range.
func NewTimeRange(a, b time.Time) TimeRange {
	if b.Before(a) {
		a, b = b, a
	}
	return TimeRange{Begin: a, End: b}
}

// IsZero returns true if neither bound is set.
func (r TimeRange) IsZero() bool {
	return r.Begin.IsZero() && r.End.IsZero()
}

// Center returns the midpoint of the interval.
func (r TimeRange) Center() time.Time {
	return r.Begin.Add(r.End.Sub(r.Begin) / 2)
}

// Union widens the range to cover the other range. Zero bounds on
// either side are ignored.
func (r TimeRange) Union(other TimeRange) TimeRange {
	out := r
	if out.Begin.IsZero() || (!other.Begin.IsZero() && other.Begin.Before(out.Begin)) {
		out.Begin = other.Begin
	}
	if out.End.IsZero() || (!other.End.IsZero() && other.End.After(out.End)) {
		out.End = other.End
	}
	return out
}

// Contains checks if a timestamp falls within the range (inclusive).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Begin) && !t.After(r.End)
}

// Dataset is a catalog record: one ingested metadata document.
type Dataset struct {
	ID       uuid.UUID // Stable dataset identifier from the document
	Product  string    // Owning product name
	Time     TimeRange // Acquisition interval
	Document Document  // Full metadata document
	Added    time.Time // Ingest timestamp
	Archived bool      // Archived datasets are excluded from summaries
}

// DatasetExtent is the derived spatial row for one dataset. Extent
// rows are immutable once inserted; recomputation only adds rows for
// dataset ids not yet present.
type DatasetExtent struct {
	ID           uuid.UUID    // Dataset identifier
	ProductRef   int          // Owning product reference id
	CenterTime   time.Time    // Midpoint of the acquisition interval
	CreationTime time.Time    // Dataset creation, always present
	Footprint    orb.Geometry // Native-CRS outline, nil when absent
	SRID         int          // Resolved spatial reference, 0 when unresolved
	GridCell     *GridCell    // Coarse grid bucket, nil when absent
	SizeBytes    *int64       // Stored size, nil when unknown
}

// HasFootprint returns true if a footprint geometry was resolved.
func (e *DatasetExtent) HasFootprint() bool {
	return e.Footprint != nil
}

// CRS returns the extent's CRS identifier, or "" when unresolved.
func (e *DatasetExtent) CRS() string {
	if e.SRID == 0 {
		return ""
	}
	return CRSString(e.SRID)
}
