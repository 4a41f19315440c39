package analysis

import "errors"

// ErrNotFound indicates a report/upload that is absent or already expired.
var ErrNotFound = errors.New("analysis not found")

// ErrInvalidPlan indicates an unknown plan tier in a request.
var ErrInvalidPlan = errors.New("invalid plan tier")
