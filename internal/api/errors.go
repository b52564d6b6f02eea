package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error codes returned by the backend that the client handles specially.
const (
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodeUnauthorized           = "UNAUTHORIZED" // deactivated account on login
	CodeEmailAlreadyUsed       = "EMAIL_ALREADY_USED"
	CodeShortCodeAlreadyExists = "SHORT_CODE_ALREADY_EXISTS"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeTokenExpired           = "TOKEN_EXPIRED"
	CodeURLNotFound            = "URL_NOT_FOUND"
	CodeValidation             = "VALIDATION_ERROR"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 1 << 20

// Error is a non-2xx response from the backend.
type Error struct {
	// Status is the HTTP status code.
	Status int

	// Code is the backend's machine-readable error code, if any.
	Code string

	// Message is the backend's human-readable error text, if any.
	Message string

	// Details carries extra context from the backend.
	Details string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, msg)
}

// AsError unwraps err to an *Error.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ErrorCode returns the backend error code carried by err, or "".
func ErrorCode(err error) string {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given backend error code.
func IsCode(err error, code string) bool {
	return code != "" && ErrorCode(err) == code
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Status == http.StatusUnauthorized
}

// decodeError builds an *Error from a failed response. The body is consumed.
func decodeError(resp *http.Response) *Error {
	apiErr := &Error{Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return apiErr
	}
	apiErr.Code = env.Code
	apiErr.Details = env.Details
	apiErr.Message = env.Error
	if apiErr.Message == "" {
		apiErr.Message = env.Message
	}
	return apiErr
}
