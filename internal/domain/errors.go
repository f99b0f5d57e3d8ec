package domain

import "errors"

// Sentinel errors for the failure taxonomy shared by the analytical engines.
//
// NotFound and total-failure conditions always surface to the caller and are
// recorded on the task status; partial failures (one asset of several) are
// recovered locally by the engines and never carry these errors.
var (
	// ErrNotFound signals an unknown entity ID. Engines fail fast on it
	// before any computation starts.
	ErrNotFound = errors.New("not found")

	// ErrNoData signals empty or insufficient price history at the
	// data-fetch boundary.
	ErrNoData = errors.New("no data available")

	// ErrNoActiveStrategies signals that a portfolio has no active
	// strategies with stored optimization metrics to allocate over.
	ErrNoActiveStrategies = errors.New("no active strategies with performance metrics")
)
