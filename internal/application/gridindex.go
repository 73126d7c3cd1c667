package application

import (
	"log/slog"
	"math"

	"github.com/terradex/strata/internal/domain"
)

// GridIndexer derives a coarse grid cell for a dataset according to
// the product's grid strategy. The strategy is decided once per
// product; the indexer only applies it.
type GridIndexer struct {
	logger *slog.Logger
}

// NewGridIndexer creates a new grid indexer.
func NewGridIndexer(logger *slog.Logger) *GridIndexer {
	return &GridIndexer{logger: logger}
}

// Cell computes the grid cell of one document. A nil cell with nil
// error means the dataset carries no cell (no strategy, or the
// document lacks the needed fields); a ValidationError means the
// computed indices do not fit the 16-bit cell range.
func (g *GridIndexer) Cell(doc domain.Document, schema domain.MetadataSchema, spec domain.GridSpec) (*domain.GridCell, error) {
	switch s := spec.(type) {
	case domain.FixedGrid:
		return g.fixedGridCell(doc, schema, s)
	case domain.PathRowFields:
		return g.pathRowCell(doc, s)
	case domain.NoGrid, nil:
		return nil, nil
	}
	return nil, nil
}

// fixedGridCell bins the centroid of the diagonal corner points
// (lower-left and upper-right) into the product's tile grid.
func (g *GridIndexer) fixedGridCell(doc domain.Document, schema domain.MetadataSchema, spec domain.FixedGrid) (*domain.GridCell, error) {
	if !spec.Valid() {
		g.logger.Warn("fixed grid with non-positive tile size, no cell",
			"tile_width", spec.TileWidth, "tile_height", spec.TileHeight)
		return nil, nil
	}

	corners, ok := doc.GetMap(schema.CornerPoints)
	if !ok {
		g.logger.Debug("document has no corner points, no grid cell")
		return nil, nil
	}
	ll, okLL := cornerPoint(corners, "ll")
	ur, okUR := cornerPoint(corners, "ur")
	if !okLL || !okUR {
		g.logger.Debug("diagonal corner points incomplete, no grid cell")
		return nil, nil
	}

	centroidX := (ll[0] + ur[0]) / 2
	centroidY := (ll[1] + ur[1]) / 2

	x, err := cellIndex("grid_cell.x", math.Floor((centroidX-spec.OriginX)/spec.TileWidth))
	if err != nil {
		return nil, err
	}
	y, err := cellIndex("grid_cell.y", math.Floor((centroidY-spec.OriginY)/spec.TileHeight))
	if err != nil {
		return nil, err
	}

	return &domain.GridCell{X: x, Y: y}, nil
}

// pathRowCell takes the lower bound of the path field and the upper
// bound of the row field as indices, with no arithmetic.
func (g *GridIndexer) pathRowCell(doc domain.Document, spec domain.PathRowFields) (*domain.GridCell, error) {
	pathLower, _, okPath := spec.Path.Bounds(doc)
	_, rowUpper, okRow := spec.Row.Bounds(doc)
	if !okPath || !okRow {
		g.logger.Debug("path/row fields unpopulated, no grid cell")
		return nil, nil
	}

	x, err := cellIndex("grid_cell.x", pathLower)
	if err != nil {
		return nil, err
	}
	y, err := cellIndex("grid_cell.y", rowUpper)
	if err != nil {
		return nil, err
	}

	return &domain.GridCell{X: x, Y: y}, nil
}

// cellIndex narrows a computed index to the 16-bit cell range. Values
// outside the range are surfaced, never wrapped.
func cellIndex(field string, v float64) (int16, error) {
	if v < math.MinInt16 || v > math.MaxInt16 || math.IsNaN(v) {
		return 0, &domain.ValidationError{
			Field:      field,
			Value:      v,
			Constraint: "[-32768, 32767]",
			Message:    "cell index outside 16-bit range",
		}
	}
	return int16(v), nil
}
