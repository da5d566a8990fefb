// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnhandled represents any failure without a more specific code.
	CodeUnhandled Code = "UNHANDLED"

	// Lookup errors. A bridge the caller does not own is reported the same
	// way as a missing one.
	CodeEntryNotFound Code = "ENTRY_NOT_FOUND"

	// Upload and codec errors
	CodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	CodeDecodeFailed      Code = "DECODE_FAILED"
	CodeInvalidGeometry   Code = "INVALID_GEOMETRY"

	// Blob storage errors
	CodeStorageFailure Code = "STORAGE_FAILURE"

	// Request validation errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
)

// UserFacing reports whether the code carries a message meant for callers.
// All other codes collapse to a generic server error.
func (c Code) UserFacing() bool {
	switch c {
	case CodeEntryNotFound, CodeUnsupportedFormat, CodeInvalidArgument, CodeUnauthenticated:
		return true
	default:
		return false
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeEntryNotFound:
		return http.StatusNotFound
	case CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
