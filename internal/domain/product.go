package domain

import (
	"fmt"
	"time"
)

// Product represents a registered dataset product.
type Product struct {
	ID          int            // Store-assigned reference id
	Name        string         // Unique product name
	Description string         // Display description
	Schema      MetadataSchema // Document field offsets
	Grid        GridSpec       // Grid strategy, decided once per product
	AddedAt     time.Time      // Registration timestamp
}

// IsSpatial returns true if the product's documents carry a footprint.
func (p *Product) IsSpatial() bool {
	return p.Schema.IsSpatial()
}

// GridSpec selects how datasets of a product are binned into coarse
// grid cells. Exactly one variant applies per product: a fixed tile
// grid, a pair of path/row fields, or no gridding at all.
type GridSpec interface {
	isGridSpec()
	// Kind returns the variant name for logs and the API.
	Kind() string
}

// FixedGrid bins dataset centroids into tiles of a regular grid
// anchored at an origin in the product's native CRS.
type FixedGrid struct {
	OriginX    float64 // Grid origin easting
	OriginY    float64 // Grid origin northing
	TileWidth  float64 // Tile extent along x
	TileHeight float64 // Tile extent along y
}

func (FixedGrid) isGridSpec() {}

// Kind implements GridSpec.
func (FixedGrid) Kind() string { return "fixed" }

// Valid returns true if the tile dimensions are usable.
func (g FixedGrid) Valid() bool {
	return g.TileWidth > 0 && g.TileHeight > 0
}

// PathRowFields bins datasets by two range-typed document fields,
// conventionally satellite path and row.
type PathRowFields struct {
	Path RangeField // Grid x comes from this field's lower bound
	Row  RangeField // Grid y comes from this field's upper bound
}

func (PathRowFields) isGridSpec() {}

// Kind implements GridSpec.
func (PathRowFields) Kind() string { return "path_row" }

// NoGrid marks a product without any grid strategy. Datasets of such
// products carry no grid cell; this is a diagnostic, not an error.
type NoGrid struct{}

func (NoGrid) isGridSpec() {}

// Kind implements GridSpec.
func (NoGrid) Kind() string { return "none" }

// GridCell is a coarse (x, y) bucket grouping spatially adjacent
// datasets. Cell indices are deliberately narrow; products whose
// binning overflows 16 bits are misconfigured.
type GridCell struct {
	X int16
	Y int16
}

// Key returns the histogram key for the cell.
func (c GridCell) Key() string {
	return fmt.Sprintf("%d_%d", c.X, c.Y)
}

// String returns a readable representation of the cell.
func (c GridCell) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}
