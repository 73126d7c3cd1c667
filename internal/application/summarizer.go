package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/output"
)

// SummarizerConfig holds configuration for the summarizer.
type SummarizerConfig struct {
	// SimplifyTolerance shrinks merged footprints when positive.
	// Zero disables simplification.
	SimplifyTolerance float64
}

// DefaultSummarizerConfig returns summarizer configuration with
// sensible defaults.
func DefaultSummarizerConfig() SummarizerConfig {
	return SummarizerConfig{
		SimplifyTolerance: 0,
	}
}

// Summarizer builds the full overview pyramid of a product from its
// extent rows: one overview per observed day, merged into months,
// years and the all-time overview, each level persisted as a full
// overwrite.
type Summarizer struct {
	store      output.Store
	aggregator *Aggregator
	metrics    output.MetricsCollector
	logger     *slog.Logger
	config     SummarizerConfig
	now        func() time.Time
}

// NewSummarizer creates a new summarizer.
func NewSummarizer(store output.Store, aggregator *Aggregator, metrics output.MetricsCollector, logger *slog.Logger, config SummarizerConfig) *Summarizer {
	return &Summarizer{
		store:      store,
		aggregator: aggregator,
		metrics:    metrics,
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
}

// Summarize rebuilds and persists every overview of the product,
// returning the all-time overview and the number of overview rows
// written. A product with no extent rows gets exactly one row: an
// empty all-time overview.
func (s *Summarizer) Summarize(ctx context.Context, product *domain.Product) (*domain.TimePeriodOverview, int, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveSummaryDuration(product.Name, time.Since(started))
	}()

	rows, err := s.store.ExtentsForPeriod(ctx, product.ID, time.Time{}, time.Time{})
	if err != nil {
		return nil, 0, &domain.StoreError{Operation: "load extents", Entity: product.Name, Err: err}
	}

	written := 0
	persist := func(period domain.Period, start domain.Date, overview *domain.TimePeriodOverview) error {
		key := output.PeriodKey{Period: period, StartDay: start}
		if err := s.store.PutOverview(ctx, product.ID, key, overview); err != nil {
			return &domain.StoreError{Operation: "put overview", Entity: product.Name, Err: err}
		}
		written++
		s.metrics.IncSummariesGenerated(product.Name, string(period))
		return nil
	}

	if len(rows) == 0 {
		empty := domain.NewZeroOverview()
		empty.SummaryGenTime = s.now()
		if err := persist(domain.PeriodAll, domain.AllTimeStart, empty); err != nil {
			return nil, written, err
		}
		s.logger.Info("product has no extents, wrote empty all-time overview",
			"product", product.Name)
		return empty, written, nil
	}

	days, err := s.buildDayOverviews(ctx, product, rows)
	if err != nil {
		return nil, written, err
	}
	for _, day := range sortedDates(days) {
		if err := persist(domain.PeriodDay, day, days[day]); err != nil {
			return nil, written, err
		}
	}

	level := days
	for _, period := range []domain.Period{domain.PeriodMonth, domain.PeriodYear, domain.PeriodAll} {
		level, err = s.mergeLevel(ctx, product, period, level)
		if err != nil {
			return nil, written, err
		}
		for _, start := range sortedDates(level) {
			if err := persist(period, start, level[start]); err != nil {
				return nil, written, err
			}
		}
	}

	allTime := level[domain.AllTimeStart]
	s.logger.Info("summarize complete",
		"product", product.Name,
		"datasets", allTime.DatasetCount,
		"overviews", written,
		"took", time.Since(started))
	return allTime, written, nil
}

// buildDayOverviews groups extent rows by the UTC calendar day of
// their center time and builds one leaf overview per day.
func (s *Summarizer) buildDayOverviews(ctx context.Context, product *domain.Product, rows []domain.DatasetExtent) (map[domain.Date]*domain.TimePeriodOverview, error) {
	groups := map[domain.Date][]*domain.DatasetExtent{}
	for i := range rows {
		day := domain.DateOf(rows[i].CenterTime)
		groups[day] = append(groups[day], &rows[i])
	}

	out := make(map[domain.Date]*domain.TimePeriodOverview, len(groups))
	for day, group := range groups {
		overview, err := s.buildDayOverview(ctx, product, day, group)
		if err != nil {
			return nil, err
		}
		out[day] = overview
	}
	return out, nil
}

// buildDayOverview reduces one day's extent rows to a leaf overview.
func (s *Summarizer) buildDayOverview(ctx context.Context, product *domain.Product, day domain.Date, group []*domain.DatasetExtent) (*domain.TimePeriodOverview, error) {
	overview := domain.NewZeroOverview()
	overview.DatasetCount = len(group)
	overview.TimelinePeriod = domain.PeriodDay
	overview.TimelineCounts[day] = len(group)
	overview.TimeRange = domain.TimeRange{
		Begin: day.Time(),
		End:   day.Time().AddDate(0, 0, 1),
	}
	overview.SummaryGenTime = s.now()

	var size int64
	var footprints []orb.Geometry
	srids := map[int]struct{}{}
	for _, row := range group {
		if row.GridCell != nil {
			overview.RegionCounts[row.GridCell.Key()]++
		}
		if row.CreationTime.After(overview.NewestDatasetCreation) {
			overview.NewestDatasetCreation = row.CreationTime
		}
		if row.SizeBytes != nil {
			size += *row.SizeBytes
		}
		if crs := row.CRS(); crs != "" {
			overview.CRSes[crs] = struct{}{}
		}
		if row.HasFootprint() {
			footprints = append(footprints, row.Footprint)
			overview.FootprintCount++
			if row.SRID != 0 {
				srids[row.SRID] = struct{}{}
			}
		}
	}
	overview.SizeBytes = &size

	crs, err := footprintCRS(srids)
	if err != nil {
		return nil, &domain.AggregationError{Product: product.Name, Period: domain.PeriodDay, Err: err}
	}
	overview.FootprintCRS = crs

	if len(footprints) > 0 {
		union, err := s.aggregator.UnionFootprints(ctx, footprints)
		if err != nil {
			return nil, &domain.AggregationError{Product: product.Name, Period: domain.PeriodDay, Err: err}
		}
		overview.Footprint = union
	}
	return overview, nil
}

// mergeLevel merges finer overviews into the next coarser level,
// grouping them by the coarser period's start day.
func (s *Summarizer) mergeLevel(ctx context.Context, product *domain.Product, period domain.Period, finer map[domain.Date]*domain.TimePeriodOverview) (map[domain.Date]*domain.TimePeriodOverview, error) {
	grouped := map[domain.Date][]*domain.TimePeriodOverview{}
	for start, overview := range finer {
		bucket := start.Truncate(period)
		grouped[bucket] = append(grouped[bucket], overview)
	}

	opts := MergeOptions{SimplifyTolerance: s.config.SimplifyTolerance}
	out := make(map[domain.Date]*domain.TimePeriodOverview, len(grouped))
	for bucket, siblings := range grouped {
		merged, err := s.aggregator.Merge(ctx, siblings, opts)
		if err != nil {
			return nil, &domain.AggregationError{Product: product.Name, Period: period, Err: err}
		}
		out[bucket] = merged
	}
	return out, nil
}

// footprintCRS resolves the single CRS of a day's footprinted rows.
// Rows without a resolved SRID contribute nothing; two distinct SRIDs
// within one product are a data integrity failure.
func footprintCRS(srids map[int]struct{}) (string, error) {
	switch len(srids) {
	case 0:
		return "", nil
	case 1:
		for srid := range srids {
			return domain.CRSString(srid), nil
		}
	}

	crses := make([]string, 0, len(srids))
	for srid := range srids {
		crses = append(crses, domain.CRSString(srid))
	}
	sort.Strings(crses)
	return "", fmt.Errorf("%v: %w", crses, domain.ErrCRSMismatch)
}

// sortedDates returns the map keys in ascending calendar order.
func sortedDates(m map[domain.Date]*domain.TimePeriodOverview) []domain.Date {
	out := make([]domain.Date, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
