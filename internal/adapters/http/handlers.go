package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jszwec/csvutil"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/terradex/strata/internal/application"
	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/input"
)

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":     boolToStatus(details.Healthy),
		"ready":      details.Ready,
		"products":   details.Products,
		"components": details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleListProducts returns all products with their summary headlines.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	listings, err := s.query.ListProducts(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}

	response := make([]map[string]interface{}, len(listings))
	for i := range listings {
		response[i] = s.formatListing(&listings[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": response,
		"count":    len(listings),
	})
}

// handleGetProduct returns one product with its summary headline.
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["product"]

	listing, err := s.query.GetProduct(r.Context(), name)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.formatListing(listing))
}

// handleOverview returns the stored overview for a period. The period
// is addressed by the path: no date parts mean all-time, a year alone
// a year bucket, and so on down to a single day.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["product"]

	key, err := parsePeriodKey(vars)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.cached(w, r, name, "application/json", func() ([]byte, error) {
		view, err := s.query.GetOverview(r.Context(), name, key)
		if err != nil {
			return nil, err
		}
		return json.Marshal(s.formatOverview(view))
	})
}

// handleFootprint returns the reprojected footprint of a period as a
// GeoJSON feature.
func (s *Server) handleFootprint(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["product"]

	key, err := parsePeriodKey(vars)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.cached(w, r, name, "application/geo+json", func() ([]byte, error) {
		view, err := s.query.GetOverview(r.Context(), name, key)
		if err != nil {
			return nil, err
		}
		if view.DisplayFootprint == nil {
			return nil, fmt.Errorf("footprint: %w", domain.ErrNotFound)
		}

		feature := geojson.NewFeature(view.DisplayFootprint)
		feature.Properties["product"] = name
		feature.Properties["period"] = string(view.Key.Period)
		feature.Properties["start_day"] = view.Key.StartDay.String()
		feature.Properties["dataset_count"] = view.Overview.DatasetCount
		feature.Properties["footprint_count"] = view.Overview.FootprintCount
		feature.Properties["srid"] = view.DisplaySRID
		return feature.MarshalJSON()
	})
}

// extentRow is one CSV line of the dataset extent export.
type extentRow struct {
	ID           string `csv:"id"`
	CenterTime   string `csv:"center_time"`
	CreationTime string `csv:"creation_time"`
	CRS          string `csv:"crs"`
	GridCell     string `csv:"grid_cell"`
	SizeBytes    string `csv:"size_bytes"`
	Footprint    string `csv:"footprint_wkt"`
}

// handleDatasetsCSV exports a product's extent rows as CSV. The
// optional limit parameter caps the number of rows.
func (s *Server) handleDatasetsCSV(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["product"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = v
	}

	extents, err := s.query.ListExtents(r.Context(), name, limit)
	if err != nil {
		s.handleError(w, err)
		return
	}

	rows := make([]extentRow, len(extents))
	for i := range extents {
		rows[i] = formatExtentRow(&extents[i])
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		s.logger.Error("csv export failed", "product", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Export failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", name+"-datasets.csv"))
	_, _ = w.Write(data)
}

// handleRefresh triggers a recomputation of one product.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["product"]

	result, err := s.refresher.TriggerRefresh(r.Context(), name)
	if err != nil {
		if errors.Is(err, application.ErrRateLimited) {
			seconds := int(s.refresher.Cooldown().Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			s.writeError(w, http.StatusTooManyRequests,
				fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", seconds))
			return
		}
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"product":           result.Product,
		"extents_inserted":  result.ExtentsInserted,
		"overviews_written": result.OverviewsWritten,
		"took_ms":           result.Took.Milliseconds(),
	})
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// cached serves a GET response through the response cache. The cache
// key is the request path; entries are associated with the product so
// a refresh can invalidate them.
func (s *Server) cached(w http.ResponseWriter, r *http.Request, product, contentType string, render func() ([]byte, error)) {
	key := "strata:v1:" + r.URL.Path

	if body, found, err := s.cache.Get(r.Context(), key); err == nil && found {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Cache", "hit")
		_, _ = w.Write(body)
		return
	}

	body, err := render()
	if err != nil {
		s.handleError(w, err)
		return
	}

	if err := s.cache.Set(r.Context(), product, key, body, s.cacheTTL); err != nil {
		s.logger.Warn("response cache store failed", "key", key, "error", err)
	}

	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(body)
}

// parsePeriodKey builds the overview key from year/month/day path
// variables. Absent variables address the all-time overview.
func parsePeriodKey(vars map[string]string) (input.OverviewKey, error) {
	rawYear, ok := vars["year"]
	if !ok {
		return input.AllTimeKey(), nil
	}

	year, err := strconv.Atoi(rawYear)
	if err != nil || year < 1000 || year > 9999 {
		return input.OverviewKey{}, errors.New("invalid year in path")
	}

	key := input.OverviewKey{
		Period:   domain.PeriodYear,
		StartDay: domain.NewDate(year, time.January, 1),
	}

	rawMonth, ok := vars["month"]
	if !ok {
		return key, nil
	}
	month, err := strconv.Atoi(rawMonth)
	if err != nil || month < 1 || month > 12 {
		return input.OverviewKey{}, errors.New("invalid month in path")
	}
	key.Period = domain.PeriodMonth
	key.StartDay = domain.NewDate(year, time.Month(month), 1)

	rawDay, ok := vars["day"]
	if !ok {
		return key, nil
	}
	day, err := strconv.Atoi(rawDay)
	if err != nil || day < 1 || day > 31 {
		return input.OverviewKey{}, errors.New("invalid day in path")
	}
	key.Period = domain.PeriodDay
	key.StartDay = domain.NewDate(year, time.Month(month), day)

	// Reject days that do not exist in the month (e.g. Feb 30)
	if domain.DateOf(key.StartDay.Time()) != key.StartDay {
		return input.OverviewKey{}, errors.New("invalid day in path")
	}

	return key, nil
}

// formatListing formats a product listing for JSON output.
func (s *Server) formatListing(l *input.ProductListing) map[string]interface{} {
	out := map[string]interface{}{
		"name":          l.Product.Name,
		"description":   l.Product.Description,
		"grid":          l.Product.Grid.Kind(),
		"spatial":       l.Product.IsSpatial(),
		"dataset_count": l.DatasetCount,
		"periods":       l.Periods,
		"added_at":      l.Product.AddedAt,
	}
	if !l.TimeRange.IsZero() {
		out["time_range"] = formatTimeRange(l.TimeRange)
	}
	return out
}

// formatOverview formats an overview view for JSON output.
func (s *Server) formatOverview(view *input.OverviewView) map[string]interface{} {
	o := view.Overview

	timeline := make(map[string]int, len(o.TimelineCounts))
	for day, count := range o.TimelineCounts {
		timeline[day.String()] = count
	}

	out := map[string]interface{}{
		"period":        string(view.Key.Period),
		"start_day":     view.Key.StartDay.String(),
		"dataset_count": o.DatasetCount,
		"timeline": map[string]interface{}{
			"period": string(o.TimelinePeriod),
			"counts": timeline,
		},
		"regions":         o.RegionCounts,
		"footprint_count": o.FootprintCount,
		"crses":           o.SortedCRSes(),
		"generation_time": o.SummaryGenTime,
	}

	if !o.TimeRange.IsZero() {
		out["time_range"] = formatTimeRange(o.TimeRange)
	}
	if o.FootprintCRS != "" {
		out["footprint_crs"] = o.FootprintCRS
	}
	if view.DisplayFootprint != nil {
		out["footprint_srid"] = view.DisplaySRID
	}
	if !o.NewestDatasetCreation.IsZero() {
		out["newest_dataset_creation"] = o.NewestDatasetCreation
	}
	if o.SizeBytes != nil {
		out["size_bytes"] = *o.SizeBytes
	}

	return out
}

// formatTimeRange formats a time range for JSON output.
func formatTimeRange(r domain.TimeRange) map[string]interface{} {
	return map[string]interface{}{
		"begin": r.Begin,
		"end":   r.End,
	}
}

// formatExtentRow formats one extent for CSV export.
func formatExtentRow(e *domain.DatasetExtent) extentRow {
	row := extentRow{
		ID:           e.ID.String(),
		CenterTime:   e.CenterTime.UTC().Format(time.RFC3339),
		CreationTime: e.CreationTime.UTC().Format(time.RFC3339),
		CRS:          e.CRS(),
	}
	if e.GridCell != nil {
		row.GridCell = e.GridCell.Key()
	}
	if e.SizeBytes != nil {
		row.SizeBytes = strconv.FormatInt(*e.SizeBytes, 10)
	}
	if e.Footprint != nil {
		row.Footprint = wkt.MarshalString(e.Footprint)
	}
	return row
}

// handleError maps application errors to HTTP status codes.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		s.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
