package store

import "errors"

// Error kinds shared by the occupancy and snapshot engines. Operations wrap them with
// context (fmt.Errorf("%w: ...", ErrX)); callers test with errors.Is.
var (
	// ErrValidation marks bad or missing input.
	ErrValidation = errors.New("validation error")
	// ErrCapacity marks a lack of zone or zone/type headroom. It may clear as vehicles exit.
	ErrCapacity = errors.New("capacity error")
	// ErrConflict marks a duplicate open ticket or a delete while occupied.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks an unknown ticket, zone or snapshot.
	ErrNotFound = errors.New("not found")
	// ErrIntegrity marks a broken occupancy invariant, such as a counter about to go negative.
	ErrIntegrity = errors.New("integrity error")
)

// Kind returns the label reported to callers for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.Is(err, ErrCapacity):
		return "CAPACITY"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrIntegrity):
		return "INTEGRITY"
	default:
		return "INTERNAL"
	}
}
