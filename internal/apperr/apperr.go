// Package apperr defines the error kinds shared by the collaboration and
// messaging services and their mapping onto HTTP status codes.
package apperr

import (
	"net/http"

	"github.com/zeebo/errs"
)

var (
	// NotFound is returned when a referenced record does not exist.
	NotFound = errs.Class("not found")
	// InvalidState is returned when a transition is attempted from the wrong status.
	InvalidState = errs.Class("invalid state")
	// Persistence wraps failures of the underlying store.
	Persistence = errs.Class("persistence")
	// Validation is returned for malformed or incomplete input.
	Validation = errs.Class("validation")
	// Conflict is returned when a write would violate a uniqueness rule.
	Conflict = errs.Class("conflict")
	// Forbidden is returned when the actor may not perform the operation.
	Forbidden = errs.Class("forbidden")
)

// Machine-readable codes sent to API clients.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidState     = "INVALID_STATE"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeConflict         = "CONFLICT"
	CodeForbidden        = "FORBIDDEN"
)

// HTTPStatus maps an error onto a status code and API error code.
// Unclassified errors are treated as internal failures.
func HTTPStatus(err error) (int, string) {
	switch {
	case NotFound.Has(err):
		return http.StatusNotFound, CodeNotFound
	case InvalidState.Has(err):
		return http.StatusConflict, CodeInvalidState
	case Validation.Has(err):
		return http.StatusBadRequest, CodeValidationFailed
	case Conflict.Has(err):
		return http.StatusConflict, CodeConflict
	case Forbidden.Has(err):
		return http.StatusForbidden, CodeForbidden
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// IsInternal reports whether err should be hidden from clients.
func IsInternal(err error) bool {
	status, _ := HTTPStatus(err)
	return status >= http.StatusInternalServerError
}
