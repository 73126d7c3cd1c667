package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/output"
)

func newTestSummarizer(store *mockStore, geo *mockGeometryOps) (*Summarizer, *mockMetrics) {
	metrics := newMockMetrics()
	aggregator := NewAggregator(geo, metrics, testLogger())
	summarizer := NewSummarizer(store, aggregator, metrics, testLogger(), DefaultSummarizerConfig())
	return summarizer, metrics
}

// summaryExtent seeds one extent row directly into the mock store.
func summaryExtent(store *mockStore, productRef int, center time.Time, mutate func(*domain.DatasetExtent)) {
	row := domain.DatasetExtent{
		ID:           uuid.New(),
		ProductRef:   productRef,
		CenterTime:   center,
		CreationTime: center,
	}
	if mutate != nil {
		mutate(&row)
	}
	store.extents[row.ID] = row
}

func squareAt(x, y float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func storedAt(t *testing.T, store *mockStore, productRef int, period domain.Period, start domain.Date) *domain.TimePeriodOverview {
	t.Helper()
	key := output.PeriodKey{Period: period, StartDay: start}
	stored, ok := store.overviews[overviewKey(productRef, key)]
	if !ok {
		t.Fatalf("no %s overview stored at %s", period, start)
	}
	return stored.overview
}

func TestSummarizeEmptyProduct(t *testing.T) {
	store := newMockStore()
	summarizer, _ := newTestSummarizer(store, &mockGeometryOps{})

	product := newProduct("ls8_scenes")
	product.ID = 7

	allTime, written, err := summarizer.Summarize(context.Background(), product)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if written != 1 {
		t.Fatalf("written = %d, want exactly one empty all-time row", written)
	}
	if !allTime.IsEmpty() {
		t.Error("all-time overview of an empty product should be empty")
	}
	if allTime.SummaryGenTime.IsZero() {
		t.Error("even an empty overview records its generation time")
	}

	stored := storedAt(t, store, 7, domain.PeriodAll, domain.AllTimeStart)
	if stored.DatasetCount != 0 {
		t.Errorf("stored DatasetCount = %d, want 0", stored.DatasetCount)
	}
}

func TestSummarizePyramid(t *testing.T) {
	store := newMockStore()
	footprinted := func(size int64) func(*domain.DatasetExtent) {
		return func(e *domain.DatasetExtent) {
			e.Footprint = squareAt(0, 0)
			e.SRID = 32655
			e.SizeBytes = &size
			e.GridCell = &domain.GridCell{X: 90, Y: 84}
		}
	}
	summaryExtent(store, 7, time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC), footprinted(10))
	summaryExtent(store, 7, time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC), footprinted(20))
	summaryExtent(store, 7, time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC), nil)
	summaryExtent(store, 7, time.Date(2023, 7, 10, 12, 0, 0, 0, time.UTC), nil)

	summarizer, metrics := newTestSummarizer(store, &mockGeometryOps{srids: map[string]int{"epsg:32655": 32655}})
	product := newProduct("ls8_scenes")
	product.ID = 7

	allTime, written, err := summarizer.Summarize(context.Background(), product)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	// 3 observed days, 3 months, 2 years, 1 all-time
	if written != 9 {
		t.Fatalf("written = %d, want 9", written)
	}
	if allTime.DatasetCount != 4 {
		t.Errorf("all-time DatasetCount = %d, want 4", allTime.DatasetCount)
	}
	if allTime.FootprintCount != 2 {
		t.Errorf("all-time FootprintCount = %d, want 2", allTime.FootprintCount)
	}
	if allTime.FootprintCRS != "EPSG:32655" {
		t.Errorf("all-time FootprintCRS = %q, want EPSG:32655", allTime.FootprintCRS)
	}
	if allTime.SizeBytes == nil || *allTime.SizeBytes != 30 {
		t.Errorf("all-time SizeBytes = %v, want 30", allTime.SizeBytes)
	}
	if got := allTime.TimelineCounts[domain.NewDate(2024, time.March, 5)]; got != 2 {
		t.Errorf("all-time timeline[2024-03-05] = %d, want 2", got)
	}
	if got := allTime.RegionCounts["90_84"]; got != 2 {
		t.Errorf("all-time regions[90_84] = %d, want 2", got)
	}

	day := storedAt(t, store, 7, domain.PeriodDay, domain.NewDate(2024, time.March, 5))
	if day.DatasetCount != 2 {
		t.Errorf("day DatasetCount = %d, want 2", day.DatasetCount)
	}
	month := storedAt(t, store, 7, domain.PeriodMonth, domain.NewDate(2024, time.March, 1))
	if month.DatasetCount != 2 {
		t.Errorf("month DatasetCount = %d, want 2", month.DatasetCount)
	}
	year := storedAt(t, store, 7, domain.PeriodYear, domain.NewDate(2024, time.January, 1))
	if year.DatasetCount != 3 {
		t.Errorf("year DatasetCount = %d, want 3 (March and April)", year.DatasetCount)
	}
	all := storedAt(t, store, 7, domain.PeriodAll, domain.AllTimeStart)
	if all.DatasetCount != 4 {
		t.Errorf("stored all-time DatasetCount = %d, want 4", all.DatasetCount)
	}

	wantBegin := time.Date(2023, 7, 10, 0, 0, 0, 0, time.UTC)
	if !all.TimeRange.Begin.Equal(wantBegin) {
		t.Errorf("all-time TimeRange.Begin = %v, want %v", all.TimeRange.Begin, wantBegin)
	}

	if metrics.summaries["ls8_scenes/day"] != 3 {
		t.Errorf("day summaries metric = %d, want 3", metrics.summaries["ls8_scenes/day"])
	}
	if metrics.summaries["ls8_scenes/all"] != 1 {
		t.Errorf("all summaries metric = %d, want 1", metrics.summaries["ls8_scenes/all"])
	}
}

func TestSummarizeCRSMismatchFails(t *testing.T) {
	store := newMockStore()
	center := time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC)
	summaryExtent(store, 7, center, func(e *domain.DatasetExtent) {
		e.Footprint = squareAt(0, 0)
		e.SRID = 32655
	})
	summaryExtent(store, 7, center, func(e *domain.DatasetExtent) {
		e.Footprint = squareAt(5, 5)
		e.SRID = 28355
	})

	summarizer, _ := newTestSummarizer(store, &mockGeometryOps{})
	product := newProduct("ls8_scenes")
	product.ID = 7

	_, _, err := summarizer.Summarize(context.Background(), product)
	if !errors.Is(err, domain.ErrCRSMismatch) {
		t.Fatalf("Summarize() error = %v, want ErrCRSMismatch", err)
	}
	var aggErr *domain.AggregationError
	if !errors.As(err, &aggErr) {
		t.Fatalf("error %v should carry aggregation context", err)
	}
	if aggErr.Product != "ls8_scenes" {
		t.Errorf("AggregationError.Product = %q, want ls8_scenes", aggErr.Product)
	}
}

func TestSummarizeUnionRetriesWithBuffer(t *testing.T) {
	store := newMockStore()
	center := time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC)
	for _, origin := range []float64{0, 5} {
		o := origin
		summaryExtent(store, 7, center, func(e *domain.DatasetExtent) {
			e.Footprint = squareAt(o, o)
			e.SRID = 32655
		})
	}

	geo := &mockGeometryOps{unionFailures: 1}
	summarizer, metrics := newTestSummarizer(store, geo)
	product := newProduct("ls8_scenes")
	product.ID = 7

	allTime, _, err := summarizer.Summarize(context.Background(), product)
	if err != nil {
		t.Fatalf("Summarize() should recover from one union failure, got %v", err)
	}
	if metrics.unionRetries != 1 {
		t.Errorf("union retries metric = %d, want 1", metrics.unionRetries)
	}
	if geo.bufferCalls != 2 {
		t.Errorf("bufferCalls = %d, want one per footprint", geo.bufferCalls)
	}
	if len(geo.bufferDists) == 0 || geo.bufferDists[0] != unionRetryBuffer {
		t.Errorf("buffer distances = %v, want the fixed retry buffer", geo.bufferDists)
	}
	if !allTime.HasFootprint() {
		t.Error("all-time overview should carry the recovered union")
	}
}
