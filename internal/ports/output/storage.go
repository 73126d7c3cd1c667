// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"
)

// ObjectStorage defines the secondary port for fetching metadata
// documents from a document source.
type ObjectStorage interface {
	// List returns all metadata documents in the source.
	List(ctx context.Context) ([]StorageObject, error)

	// GetReader returns a reader for the given document.
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if a document exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// StorageObject represents a document in a source.
type StorageObject struct {
	Key          string // Object key/path
	Size         int64  // Size in bytes
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeHTTP  StorageType = "http"
	StorageTypeLocal StorageType = "local"
)
