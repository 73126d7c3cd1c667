package storage

import "strings"

// isMetadataDocument reports whether a storage key names a dataset or
// product metadata document. Everything else in a bucket (imagery,
// checksums, thumbnails) is ignored by List.
func isMetadataDocument(key string) bool {
	switch {
	case strings.HasSuffix(strings.ToLower(key), ".yaml"):
		return true
	case strings.HasSuffix(strings.ToLower(key), ".yml"):
		return true
	case strings.HasSuffix(strings.ToLower(key), ".json"):
		return true
	}
	return false
}
