package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrIntegrity    = errors.New("data integrity violation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrProductNotFound  = fmt.Errorf("product: %w", ErrNotFound)
	ErrDatasetNotFound  = fmt.Errorf("dataset: %w", ErrNotFound)
	ErrOverviewNotFound = fmt.Errorf("overview: %w", ErrNotFound)
	ErrSRIDNotFound     = fmt.Errorf("spatial reference: %w", ErrNotFound)
	ErrInvalidDocument  = fmt.Errorf("metadata document: %w", ErrInvalidInput)
	ErrInvalidPeriod    = fmt.Errorf("period: %w", ErrInvalidInput)
	ErrCRSMismatch      = fmt.Errorf("sibling overviews carry differing footprint crses: %w", ErrIntegrity)
	ErrUnionFailed      = fmt.Errorf("footprint union: %w", ErrInternal)
	ErrNotReady         = fmt.Errorf("service not ready: %w", ErrUnavailable)
	ErrStoreUnavailable = fmt.Errorf("store: %w", ErrUnavailable)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// AggregationError represents a failure while merging period overviews.
type AggregationError struct {
	Product string // Product being summarized
	Period  Period // Target period of the merge
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *AggregationError) Error() string {
	if e.Period != "" {
		return fmt.Sprintf("aggregation error for product %s at period %s: %v",
			e.Product, e.Period, e.Err)
	}
	return fmt.Sprintf("aggregation error for product %s: %v", e.Product, e.Err)
}

// Unwrap returns the underlying error.
func (e *AggregationError) Unwrap() error {
	return e.Err
}

// StoreError represents an error during persistence operations.
type StoreError struct {
	Operation string // Operation that failed (insert, query, etc.)
	Entity    string // Affected entity (product, extent, overview)
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("store error during %s of %s: %v",
			e.Operation, e.Entity, e.Err)
	}
	return fmt.Sprintf("store error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// StorageError represents an error while fetching metadata documents.
type StorageError struct {
	Operation string // Operation that failed (download, list, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IngestError represents a failure to ingest one metadata document.
// Ingest batches continue past individual document failures.
type IngestError struct {
	Source string // Document key or path
	Err    error  // Underlying error
}

// Error implements the error interface.
func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest error for %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *IngestError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
