package iipsearch

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrorCode represents specific error codes for search operations.
type ErrorCode int

const (
	// ErrCodeEmptyQuery is returned when an empty query is provided.
	ErrCodeEmptyQuery ErrorCode = iota + 1000

	// ErrCodeInvalidOption is returned when an invalid option is provided.
	ErrCodeInvalidOption

	// ErrCodeInvalidExpression is returned when an invalid expression is provided.
	ErrCodeInvalidExpression

	// ErrCodeTimeout is returned when a search operation times out.
	ErrCodeTimeout

	// ErrCodeCanceled is returned when a search operation is canceled.
	ErrCodeCanceled

	// ErrCodeNotImplemented is returned when a feature is not implemented.
	ErrCodeNotImplemented

	// ErrCodeBackendUnavailable is returned when the search backend is unavailable.
	ErrCodeBackendUnavailable

	// ErrCodeMalformedQuery is returned when the index cannot parse or execute a query.
	ErrCodeMalformedQuery

	// ErrCodePageOutOfRange is returned when a requested page does not exist.
	ErrCodePageOutOfRange

	// ErrCodeFacetDataUnavailable is returned when facet counts are missing from a response.
	ErrCodeFacetDataUnavailable

	// ErrCodeMalformedEntry is returned when an encoded field entry cannot be decoded.
	ErrCodeMalformedEntry

	// ErrCodeDisplayRewrite is returned when a query cannot be rewritten for display.
	ErrCodeDisplayRewrite
)

// String returns the human-readable string representation of the error code.
// This implements the fmt.Stringer interface.
func (e ErrorCode) String() string {
	switch e {
	case ErrCodeEmptyQuery:
		return "empty query"
	case ErrCodeInvalidOption:
		return "invalid option"
	case ErrCodeInvalidExpression:
		return "invalid expression"
	case ErrCodeTimeout:
		return "operation timed out"
	case ErrCodeCanceled:
		return "operation canceled"
	case ErrCodeNotImplemented:
		return "not implemented"
	case ErrCodeBackendUnavailable:
		return "backend unavailable"
	case ErrCodeMalformedQuery:
		return "malformed query"
	case ErrCodePageOutOfRange:
		return "page out of range"
	case ErrCodeFacetDataUnavailable:
		return "facet data unavailable"
	case ErrCodeMalformedEntry:
		return "malformed encoded entry"
	case ErrCodeDisplayRewrite:
		return "display rewrite failed"
	default:
		return "unknown error"
	}
}

// newErrorWithCode creates a new error with a code and message.
func newErrorWithCode(code ErrorCode, msg string) error {
	err := errors.New(msg)
	return errors.WithSecondaryError(err, errors.Newf("code: %d", int(code)))
}

// Common errors that can be returned by search operations.
var (
	// ErrEmptyQuery is returned when an empty query is provided.
	ErrEmptyQuery = newErrorWithCode(ErrCodeEmptyQuery, "iipsearch: empty query")

	// ErrInvalidOption is returned when an invalid option is provided.
	ErrInvalidOption = newErrorWithCode(ErrCodeInvalidOption, "iipsearch: invalid option")

	// ErrInvalidExpression is returned when an invalid expression is provided.
	ErrInvalidExpression = newErrorWithCode(ErrCodeInvalidExpression, "iipsearch: invalid expression")

	// ErrTimeout is returned when a search operation times out.
	ErrTimeout = newErrorWithCode(ErrCodeTimeout, "iipsearch: operation timed out")

	// ErrCanceled is returned when a search operation is canceled.
	ErrCanceled = newErrorWithCode(ErrCodeCanceled, "iipsearch: operation canceled")

	// ErrNotImplemented is returned when a feature is not implemented.
	ErrNotImplemented = newErrorWithCode(ErrCodeNotImplemented, "iipsearch: not implemented")

	// ErrBackendUnavailable is returned when the search backend is unavailable.
	ErrBackendUnavailable = newErrorWithCode(ErrCodeBackendUnavailable, "iipsearch: backend unavailable")

	// ErrMalformedQuery is returned when the index rejects a query's syntax.
	// It is the only error class that triggers the match-all fallback.
	ErrMalformedQuery = newErrorWithCode(ErrCodeMalformedQuery, "iipsearch: malformed query")

	// ErrPageOutOfRange is returned when a page number is outside the result set.
	ErrPageOutOfRange = newErrorWithCode(ErrCodePageOutOfRange, "iipsearch: page out of range")

	// ErrFacetDataUnavailable is returned when a response carries no facet counts.
	ErrFacetDataUnavailable = newErrorWithCode(ErrCodeFacetDataUnavailable, "iipsearch: facet data unavailable")

	// ErrMalformedEntry is returned when an encoded field entry lacks required keys.
	ErrMalformedEntry = newErrorWithCode(ErrCodeMalformedEntry, "iipsearch: malformed encoded entry")

	// ErrDisplayRewrite is returned when a query cannot be rendered for display.
	ErrDisplayRewrite = newErrorWithCode(ErrCodeDisplayRewrite, "iipsearch: display rewrite failed")
)

// ClassifyContextError maps context cancellation and deadline errors onto
// ErrCanceled and ErrTimeout. It returns nil for any other error.
func ClassifyContextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCanceled
	default:
		return nil
	}
}
