// Structured API errors shared by all handlers.
package dto

import "net/http"

// ErrorCode is a machine-readable error class.
type ErrorCode string

// Error codes returned in ErrorResponse bodies.
const (
	CodeBadRequest   ErrorCode = "bad_request"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeNotFound     ErrorCode = "not_found"
	CodeInternal     ErrorCode = "internal"
)

// ErrorDetails is the payload of an error response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
}

// APIError carries an HTTP status alongside the structured details.
type APIError struct {
	Status  int
	Code    ErrorCode
	Message string
}

func (e *APIError) Error() string { return e.Message }

// BadRequest returns a 400 error.
func BadRequest(msg string) error {
	return &APIError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: msg}
}

// Unauthorized returns a 401 error.
func Unauthorized(msg string) error {
	return &APIError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: msg}
}

// NotFound returns a 404 error.
func NotFound(msg string) error {
	return &APIError{Status: http.StatusNotFound, Code: CodeNotFound, Message: msg}
}

// InternalError returns a 500 error.
func InternalError(msg string) error {
	return &APIError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: msg}
}
