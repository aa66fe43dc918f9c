// Package shared holds cross-cutting helpers used by the billing core.
package shared

import "errors"

// Error taxonomy for the billing core. Domain packages wrap these so callers
// can classify failures with errors.Is without importing every package's
// sentinels.
var (
	// ErrValidation indicates malformed or out-of-range input, rejected
	// before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates an unknown expense, charge, apartment, resident
	// or payment reference.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a state conflict: re-distributing an allocated
	// expense, overpaying a charge, closing a closed report.
	ErrConflict = errors.New("conflict")
	// ErrDependency indicates an unreachable external collaborator, such as
	// the exchange-rate source. Never retried automatically.
	ErrDependency = errors.New("dependency unavailable")
)
