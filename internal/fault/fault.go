// Package fault defines the business error taxonomy shared by every
// domain package. Errors carry a category, a stable machine-readable code
// and a small metadata map; they cross package boundaries unmodified and
// are translated to transport status codes only at the HTTP edge.
package fault

import (
	"errors"
	"fmt"
)

// Category classifies a business error for boundary translation.
type Category string

const (
	Validation    Category = "VALIDATION"
	Authorization Category = "AUTHORIZATION"
	NotFound      Category = "NOT_FOUND"
	Conflict      Category = "CONFLICT"
	Technical     Category = "TECHNICAL"
)

// Error is a category-tagged business error. Metadata must contain only
// whitelisted, caller-safe fields, never raw internal state.
type Error struct {
	Category Category
	Code     string
	Metadata map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Code)
}

// Is matches two faults by category and code so sentinel-style
// errors.Is comparisons work across the codebase.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Category == other.Category && e.Code == other.Code
}

// New builds a fault with an explicit category.
func New(category Category, code string, metadata map[string]string) *Error {
	return &Error{Category: category, Code: code, Metadata: metadata}
}

// Invalid reports malformed or out-of-range input.
func Invalid(code string, metadata map[string]string) *Error {
	return New(Validation, code, metadata)
}

// Denied reports a caller that is not allowed to perform the operation.
func Denied(code string, metadata map[string]string) *Error {
	return New(Authorization, code, metadata)
}

// Missing reports an aggregate that could not be found.
func Missing(code string, metadata map[string]string) *Error {
	return New(NotFound, code, metadata)
}

// Conflicting reports a state conflict such as an idempotency race,
// insufficient funds or a duplicate in-flight request.
func Conflicting(code string, metadata map[string]string) *Error {
	return New(Conflict, code, metadata)
}

// Internal wraps a genuinely unexpected failure as a TECHNICAL fault.
func Internal(code string, metadata map[string]string) *Error {
	return New(Technical, code, metadata)
}

// CategoryOf extracts the category from err, defaulting to Technical for
// anything that is not a *Error.
func CategoryOf(err error) Category {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Category
	}
	return Technical
}

// CodeOf extracts the stable code from err, or "internal_error" for
// unexpected failures.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return "internal_error"
}
