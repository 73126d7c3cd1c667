package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// Period is the granularity of a summary time bucket.
type Period string

// Summary periods, finest first.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// Valid returns true for a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodMonth, PeriodYear, PeriodAll:
		return true
	}
	return false
}

// Coarser returns the next coarser timeline granularity. Year is the
// coarsest timeline; "all" is a storage key, not a timeline unit.
func (p Period) Coarser() (Period, bool) {
	switch p {
	case PeriodDay:
		return PeriodMonth, true
	case PeriodMonth:
		return PeriodYear, true
	}
	return p, false
}

// Date is a calendar day used as a histogram and storage key.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// AllTimeStart is the fixed start-day key under which the all-time
// overview of a product is stored.
var AllTimeStart = Date{Year: 1900, Month: time.January, Day: 1}

// DateOf returns the UTC calendar day of a timestamp.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// NewDate builds a date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses a date in ISO "2006-01-02" form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("date %q: %w", s, ErrInvalidInput)
	}
	return DateOf(t), nil
}

// Time returns the UTC midnight instant of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// StartOfMonth truncates the date to the first day of its month.
func (d Date) StartOfMonth() Date {
	return Date{Year: d.Year, Month: d.Month, Day: 1}
}

// StartOfYear truncates the date to the first day of its year.
func (d Date) StartOfYear() Date {
	return Date{Year: d.Year, Month: time.January, Day: 1}
}

// Truncate snaps the date to the start of the given period. For the
// all period the fixed all-time key is returned.
func (d Date) Truncate(p Period) Date {
	switch p {
	case PeriodMonth:
		return d.StartOfMonth()
	case PeriodYear:
		return d.StartOfYear()
	case PeriodAll:
		return AllTimeStart
	}
	return d
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// String returns the ISO form of the date.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero returns true for the zero date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// TimelineDownsampleThreshold is the largest timeline histogram kept
// at its current granularity; beyond it the timeline is coarsened one
// level during a merge.
const TimelineDownsampleThreshold = 366

// TimePeriodOverview is the aggregated summary of one product within
// one time bucket. Overviews are built bottom-up from extent rows and
// merged day to month to year to all-time.
type TimePeriodOverview struct {
	DatasetCount   int            // Total datasets in the bucket
	TimelineCounts map[Date]int   // Datasets per timeline key
	RegionCounts   map[string]int // Datasets per grid cell key
	TimelinePeriod Period         // Granularity of TimelineCounts keys
	TimeRange      TimeRange      // Acquisition range covered

	Footprint      orb.Geometry // Combined outline, nil when absent
	FootprintCRS   string       // CRS of Footprint, "" when absent
	FootprintCount int          // Datasets that contributed a valid footprint

	NewestDatasetCreation time.Time           // Zero when unknown
	CRSes                 map[string]struct{} // Distinct dataset CRSes seen
	SizeBytes             *int64              // Total stored bytes, nil when unknown
	SummaryGenTime        time.Time           // When this summary was computed
}

// NewZeroOverview returns an empty overview: zero datasets, no
// geometry, empty histograms.
func NewZeroOverview() *TimePeriodOverview {
	return &TimePeriodOverview{
		TimelineCounts: map[Date]int{},
		RegionCounts:   map[string]int{},
		TimelinePeriod: PeriodDay,
		CRSes:          map[string]struct{}{},
	}
}

// IsEmpty returns true if the overview summarizes no datasets.
func (o *TimePeriodOverview) IsEmpty() bool {
	return o == nil || o.DatasetCount == 0
}

// HasFootprint returns true if a combined footprint exists.
func (o *TimePeriodOverview) HasFootprint() bool {
	return o.Footprint != nil
}

// TimelineTotal returns the sum of all timeline counts.
func (o *TimePeriodOverview) TimelineTotal() int {
	total := 0
	for _, c := range o.TimelineCounts {
		total += c
	}
	return total
}

// SortedCRSes returns the CRS set as a sorted slice for stable output.
func (o *TimePeriodOverview) SortedCRSes() []string {
	out := make([]string, 0, len(o.CRSes))
	for crs := range o.CRSes {
		out = append(out, crs)
	}
	sort.Strings(out)
	return out
}

// SortedTimelineKeys returns the timeline keys in ascending order.
func (o *TimePeriodOverview) SortedTimelineKeys() []Date {
	out := make([]Date, 0, len(o.TimelineCounts))
	for d := range o.TimelineCounts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
