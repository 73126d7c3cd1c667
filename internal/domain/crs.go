package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SRIDWGS84 is the geographic display CRS used for rendered footprints.
const SRIDWGS84 = 4326

// CRSString returns the canonical identifier for a numeric SRID.
func CRSString(srid int) string {
	return fmt.Sprintf("EPSG:%d", srid)
}

// ParseCRS extracts the numeric SRID from an identifier of the form
// "EPSG:4326" (authority case-insensitive) or a bare numeric code.
func ParseCRS(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty crs: %w", ErrInvalidInput)
	}
	code := s
	if i := strings.LastIndex(s, ":"); i >= 0 {
		code = s[i+1:]
	}
	srid, err := strconv.Atoi(code)
	if err != nil || srid <= 0 {
		return 0, fmt.Errorf("crs %q: %w", s, ErrInvalidInput)
	}
	return srid, nil
}
