package index

import "errors"

// Errors returned by RequestIndex operations.
var (
	// ErrDimensionMismatch is returned when a vector's length does not
	// match the dimension fixed by the index's first insertion.
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")
	// ErrInvalidK is returned by FetchNearestK when k <= 0.
	ErrInvalidK = errors.New("index: k must be positive")
	// ErrMetricConflict is returned when opening a persisted index whose
	// sidecar metric differs from the metric requested at open time.
	ErrMetricConflict = errors.New("index: persisted metric conflicts with requested metric")
)
