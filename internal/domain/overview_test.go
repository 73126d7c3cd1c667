package domain

import (
	"testing"
	"time"
)

func TestPeriodValid(t *testing.T) {
	tests := []struct {
		name   string
		period Period
		want   bool
	}{
		{"day", PeriodDay, true},
		{"month", PeriodMonth, true},
		{"year", PeriodYear, true},
		{"all", PeriodAll, true},
		{"empty", Period(""), false},
		{"unknown", Period("week"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.period.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPeriodCoarser(t *testing.T) {
	tests := []struct {
		name   string
		period Period
		want   Period
		wantOK bool
	}{
		{"day coarsens to month", PeriodDay, PeriodMonth, true},
		{"month coarsens to year", PeriodMonth, PeriodYear, true},
		{"year is coarsest", PeriodYear, PeriodYear, false},
		{"all is not a timeline unit", PeriodAll, PeriodAll, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.period.Coarser()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Coarser() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDateOf(t *testing.T) {
	// Timestamps are bucketed by their UTC day, whatever the zone.
	loc := time.FixedZone("AEST", 10*3600)
	ts := time.Date(2024, 3, 1, 5, 0, 0, 0, loc)

	got := DateOf(ts)
	want := Date{Year: 2024, Month: time.February, Day: 29}
	if got != want {
		t.Errorf("DateOf() = %v, want %v", got, want)
	}
}

func TestDateTruncate(t *testing.T) {
	d := Date{Year: 2024, Month: time.March, Day: 15}

	tests := []struct {
		name   string
		period Period
		want   Date
	}{
		{"day keeps day", PeriodDay, d},
		{"month", PeriodMonth, Date{Year: 2024, Month: time.March, Day: 1}},
		{"year", PeriodYear, Date{Year: 2024, Month: time.January, Day: 1}},
		{"all", PeriodAll, AllTimeStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Truncate(tt.period); got != tt.want {
				t.Errorf("Truncate(%s) = %v, want %v", tt.period, got, tt.want)
			}
		})
	}
}

func TestDateBefore(t *testing.T) {
	tests := []struct {
		name string
		a, b Date
		want bool
	}{
		{"earlier year", Date{2023, time.December, 31}, Date{2024, time.January, 1}, true},
		{"earlier month", Date{2024, time.January, 31}, Date{2024, time.February, 1}, true},
		{"earlier day", Date{2024, time.March, 1}, Date{2024, time.March, 2}, true},
		{"equal", Date{2024, time.March, 1}, Date{2024, time.March, 1}, false},
		{"later", Date{2024, time.March, 2}, Date{2024, time.March, 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Before(tt.b); got != tt.want {
				t.Errorf("Before() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDateString(t *testing.T) {
	d := Date{Year: 2024, Month: time.March, Day: 5}
	if got := d.String(); got != "2024-03-05" {
		t.Errorf("String() = %q, want %q", got, "2024-03-05")
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-05")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if d != (Date{Year: 2024, Month: time.March, Day: 5}) {
		t.Errorf("ParseDate() = %v", d)
	}

	if _, err := ParseDate("05/03/2024"); err == nil {
		t.Error("ParseDate() should reject non-ISO input")
	}
}

func TestDateRoundTrip(t *testing.T) {
	d := Date{Year: 2024, Month: time.February, Day: 29}
	if got := DateOf(d.Time()); got != d {
		t.Errorf("DateOf(Time()) = %v, want %v", got, d)
	}
}

func TestNewZeroOverview(t *testing.T) {
	o := NewZeroOverview()

	if !o.IsEmpty() {
		t.Error("zero overview should be empty")
	}
	if o.HasFootprint() {
		t.Error("zero overview should have no footprint")
	}
	if len(o.TimelineCounts) != 0 || len(o.RegionCounts) != 0 || len(o.CRSes) != 0 {
		t.Error("zero overview should have empty histograms and CRS set")
	}
	if o.TimelinePeriod != PeriodDay {
		t.Errorf("zero overview timeline period = %s, want %s", o.TimelinePeriod, PeriodDay)
	}
}

func TestOverviewTimelineTotal(t *testing.T) {
	o := NewZeroOverview()
	o.TimelineCounts[Date{2024, time.March, 1}] = 3
	o.TimelineCounts[Date{2024, time.March, 2}] = 7

	if got := o.TimelineTotal(); got != 10 {
		t.Errorf("TimelineTotal() = %d, want 10", got)
	}
}

func TestOverviewSortedCRSes(t *testing.T) {
	o := NewZeroOverview()
	o.CRSes["EPSG:32655"] = struct{}{}
	o.CRSes["EPSG:3577"] = struct{}{}

	got := o.SortedCRSes()
	if len(got) != 2 || got[0] != "EPSG:3577" || got[1] != "EPSG:32655" {
		t.Errorf("SortedCRSes() = %v", got)
	}
}

func TestOverviewSortedTimelineKeys(t *testing.T) {
	o := NewZeroOverview()
	o.TimelineCounts[Date{2024, time.March, 2}] = 1
	o.TimelineCounts[Date{2023, time.December, 31}] = 1
	o.TimelineCounts[Date{2024, time.January, 15}] = 1

	keys := o.SortedTimelineKeys()
	if len(keys) != 3 {
		t.Fatalf("SortedTimelineKeys() len = %d, want 3", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i].Before(keys[i-1]) {
			t.Errorf("keys not sorted: %v before %v", keys[i], keys[i-1])
		}
	}
}

func TestIsEmptyNilReceiver(t *testing.T) {
	var o *TimePeriodOverview
	if !o.IsEmpty() {
		t.Error("nil overview should be empty")
	}
}
