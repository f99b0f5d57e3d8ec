// Package progress provides progress reporting utilities for long-running
// analytical operations.
package progress

// Callback is a function that reports progress during long operations.
// Parameters:
//   - current: Number of items completed
//   - total: Total number of items
//
// Progress reporting is best-effort and advisory only; it is never used for
// correctness. A nil Callback is valid and will be safely ignored by Call().
type Callback func(current, total int)

// Call safely invokes the callback if non-nil.
// This allows callers to pass progress updates without checking for nil.
func Call(cb Callback, current, total int) {
	if cb != nil {
		cb(current, total)
	}
}
