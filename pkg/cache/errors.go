// Package cache implements SimilarityCache, the façade that owns a
// RequestIndex, a ResponseStore, and an eviction Policy, and drives the
// embedding-based hit/miss decision and insertion protocol between them.
package cache

import "errors"

// Error taxonomy surfaced by SimilarityCache. All errors propagate to
// the caller; the cache never retries internally.
var (
	// ErrDimensionMismatch is returned when an embedded vector's length
	// does not match the dimension fixed by the index's first insertion.
	ErrDimensionMismatch = errors.New("cache: vector dimension mismatch")
	// ErrMetricConflict names the error kind for a persisted index whose
	// metric differs from the one requested. Opening an index happens
	// in pkg/index, whose Open returns index.ErrMetricConflict; no
	// SimilarityCache method returns this value.
	ErrMetricConflict = errors.New("cache: persisted metric conflicts with requested metric")
	// ErrMissingExtra is returned when a policy or stats update demands
	// metadata (e.g. llm_latency, llm_delay) the caller omitted.
	ErrMissingExtra = errors.New("cache: call is missing required metadata")
	// ErrMissingResponse indicates the RequestIndex has a key the
	// ResponseStore does not: store drift. This is always a bug.
	ErrMissingResponse = errors.New("cache: response store drift: index key has no response")
	// ErrInvalidConfig is returned at construction for invalid options
	// (e.g. smoothing factor outside (0, 1], non-positive candidatesNumber).
	ErrInvalidConfig = errors.New("cache: invalid configuration")
	// ErrStoreIO wraps an underlying persistence failure.
	ErrStoreIO = errors.New("cache: storage I/O failure")
)
