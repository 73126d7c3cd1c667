package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/paulmach/orb"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/output"
)

// unionRetryBuffer is the expansion applied to every footprint before
// the second union attempt, forcing degenerate shared edges to
// properly intersect.
const unionRetryBuffer = 0.001

// MergeOptions tunes one merge call.
type MergeOptions struct {
	// SimplifyTolerance reduces the merged footprint's vertex count
	// when positive. It never applies to stored per-dataset footprints.
	SimplifyTolerance float64
}

// Aggregator merges sibling period overviews into one coarser
// overview. Merge is a pure reduction over its inputs; the only state
// here is the injected geometry engine and diagnostics.
type Aggregator struct {
	geo     output.GeometryOps
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewAggregator creates a new aggregator.
func NewAggregator(geo output.GeometryOps, metrics output.MetricsCollector, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		geo:     geo,
		metrics: metrics,
		logger:  logger,
	}
}

// Merge combines any number of sibling overviews. Inputs are never
// mutated. Nil and empty overviews are ignored; merging none yields
// the zero overview. Sibling overviews must agree on their footprint
// CRS; divergence is a data integrity error, never auto-resolved.
func (a *Aggregator) Merge(ctx context.Context, overviews []*domain.TimePeriodOverview, opts MergeOptions) (*domain.TimePeriodOverview, error) {
	filtered := make([]*domain.TimePeriodOverview, 0, len(overviews))
	for _, o := range overviews {
		if !o.IsEmpty() {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return domain.NewZeroOverview(), nil
	}

	crs, err := siblingCRS(filtered)
	if err != nil {
		return nil, err
	}

	out := domain.NewZeroOverview()
	out.FootprintCRS = crs

	// Counts merge by per-key summation: sparse map addition, never
	// positional.
	for _, o := range filtered {
		out.DatasetCount += o.DatasetCount
		for day, count := range o.TimelineCounts {
			out.TimelineCounts[day] += count
		}
		for region, count := range o.RegionCounts {
			out.RegionCounts[region] += count
		}
	}
	out.TimelinePeriod = coarsestTimeline(filtered)

	// Bound the timeline cardinality by coarsening one level. Totals
	// are conserved exactly.
	if len(out.TimelineCounts) > domain.TimelineDownsampleThreshold {
		if coarser, ok := out.TimelinePeriod.Coarser(); ok {
			out.TimelineCounts = regroupTimeline(out.TimelineCounts, coarser)
			out.TimelinePeriod = coarser
			a.logger.Debug("timeline down-sampled",
				"period", coarser, "keys", len(out.TimelineCounts))
		}
	}

	valid, err := a.validFootprints(ctx, filtered)
	if err != nil {
		return nil, err
	}
	if len(valid.geometries) > 0 {
		union, err := a.UnionFootprints(ctx, valid.geometries)
		if err != nil {
			return nil, err
		}
		if opts.SimplifyTolerance > 0 && union != nil {
			union, err = a.geo.Simplify(ctx, union, opts.SimplifyTolerance)
			if err != nil {
				return nil, err
			}
		}
		out.Footprint = union
	}
	out.FootprintCount = valid.count

	// Scalar reductions.
	var size int64
	for _, o := range filtered {
		out.TimeRange = out.TimeRange.Union(o.TimeRange)
		if o.NewestDatasetCreation.After(out.NewestDatasetCreation) {
			out.NewestDatasetCreation = o.NewestDatasetCreation
		}
		// The merge is only as fresh as its stalest input.
		if !o.SummaryGenTime.IsZero() &&
			(out.SummaryGenTime.IsZero() || o.SummaryGenTime.Before(out.SummaryGenTime)) {
			out.SummaryGenTime = o.SummaryGenTime
		}
		for crs := range o.CRSes {
			out.CRSes[crs] = struct{}{}
		}
		if o.SizeBytes != nil {
			size += *o.SizeBytes
		}
	}
	out.SizeBytes = &size

	return out, nil
}

// UnionFootprints dissolves footprints into one geometry, retrying
// exactly once with buffered inputs when the union hits a topology
// failure. A failure after the retry is fatal to the merge.
func (a *Aggregator) UnionFootprints(ctx context.Context, geometries []orb.Geometry) (orb.Geometry, error) {
	if len(geometries) == 0 {
		return nil, nil
	}

	union, err := a.geo.Union(ctx, geometries)
	if err == nil {
		return union, nil
	}
	if !errors.Is(err, domain.ErrUnionFailed) {
		return nil, err
	}

	a.logger.Warn("footprint union failed, retrying with buffered geometries", "error", err)
	a.metrics.IncUnionRetries()

	buffered := make([]orb.Geometry, 0, len(geometries))
	for _, g := range geometries {
		b, bufErr := a.geo.Buffer(ctx, g, unionRetryBuffer)
		if bufErr != nil {
			return nil, bufErr
		}
		buffered = append(buffered, b)
	}

	union, err = a.geo.Union(ctx, buffered)
	if err != nil {
		return nil, fmt.Errorf("after buffered retry: %w", err)
	}
	return union, nil
}

// validGeometries collects the union inputs and the footprint count
// they contribute.
type validGeometries struct {
	geometries []orb.Geometry
	count      int
}

// validFootprints selects the inputs whose footprint takes part in the
// union: a positive footprint count and a present, non-empty,
// topologically valid geometry. Invalid geometries are excluded with a
// diagnostic, not an error.
func (a *Aggregator) validFootprints(ctx context.Context, overviews []*domain.TimePeriodOverview) (validGeometries, error) {
	var out validGeometries
	for _, o := range overviews {
		if o.FootprintCount <= 0 || geometryIsEmpty(o.Footprint) {
			continue
		}
		ok, err := a.geo.IsValid(ctx, o.Footprint)
		if err != nil {
			return validGeometries{}, err
		}
		if !ok {
			a.logger.Warn("excluding topologically invalid footprint from union",
				"crs", o.FootprintCRS, "footprint_count", o.FootprintCount)
			continue
		}
		out.geometries = append(out.geometries, o.Footprint)
		out.count += o.FootprintCount
	}
	return out, nil
}

// siblingCRS returns the single CRS shared by the overviews, or "" if
// none declares one. More than one distinct CRS is fatal.
func siblingCRS(overviews []*domain.TimePeriodOverview) (string, error) {
	seen := map[string]struct{}{}
	for _, o := range overviews {
		if o.FootprintCRS != "" {
			seen[o.FootprintCRS] = struct{}{}
		}
	}
	switch len(seen) {
	case 0:
		return "", nil
	case 1:
		for crs := range seen {
			return crs, nil
		}
	}

	crses := make([]string, 0, len(seen))
	for crs := range seen {
		crses = append(crses, crs)
	}
	sort.Strings(crses)
	return "", fmt.Errorf("%v: %w", crses, domain.ErrCRSMismatch)
}

// coarsestTimeline returns the coarsest timeline granularity among the
// inputs, so mixed-granularity histograms merge under one period.
func coarsestTimeline(overviews []*domain.TimePeriodOverview) domain.Period {
	rank := map[domain.Period]int{
		domain.PeriodDay:   0,
		domain.PeriodMonth: 1,
		domain.PeriodYear:  2,
	}
	out := domain.PeriodDay
	for _, o := range overviews {
		if rank[o.TimelinePeriod] > rank[out] {
			out = o.TimelinePeriod
		}
	}
	return out
}

// regroupTimeline re-keys a timeline at a coarser granularity,
// re-summing counts under the new keys.
func regroupTimeline(counts map[domain.Date]int, to domain.Period) map[domain.Date]int {
	out := make(map[domain.Date]int, len(counts))
	for day, count := range counts {
		out[day.Truncate(to)] += count
	}
	return out
}

// geometryIsEmpty reports whether a geometry is absent or has no
// coordinates.
func geometryIsEmpty(g orb.Geometry) bool {
	switch geom := g.(type) {
	case nil:
		return true
	case orb.Polygon:
		for _, ring := range geom {
			if len(ring) > 0 {
				return false
			}
		}
		return true
	case orb.MultiPolygon:
		for _, poly := range geom {
			if !geometryIsEmpty(poly) {
				return false
			}
		}
		return true
	case orb.Ring:
		return len(geom) == 0
	case orb.LineString:
		return len(geom) == 0
	case orb.MultiLineString:
		return len(geom) == 0
	case orb.MultiPoint:
		return len(geom) == 0
	case orb.Collection:
		for _, sub := range geom {
			if !geometryIsEmpty(sub) {
				return false
			}
		}
		return true
	}
	return false
}
