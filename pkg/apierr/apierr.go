// Package apierr defines the structured error type returned by the HTTP
// API: a machine-readable code, a human-readable message, and an HTTP
// status, with an optional wrapped cause that is never serialized.
package apierr

import "fmt"

// Code is a machine-readable error code returned in API responses.
type Code string

const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeInternalError      Code = "INTERNAL_ERROR"

	CodeNodeNotFound     Code = "NODE_NOT_FOUND"
	CodeGraphQueryFailed Code = "GRAPH_QUERY_FAILED"
	CodeSymbolListFailed Code = "SYMBOL_LIST_FAILED"

	CodeMissingAPIKey    Code = "MISSING_API_KEY"
	CodeInvalidAPIKey    Code = "INVALID_API_KEY"
	CodeDestructiveQuery Code = "DESTRUCTIVE_QUERY"
	CodeQueryRequired    Code = "QUERY_REQUIRED"

	CodeScanTriggerFailed Code = "SCAN_TRIGGER_FAILED"
	CodeGraphClearFailed  Code = "GRAPH_CLEAR_FAILED"

	CodeGraphNotReady Code = "GRAPH_NOT_READY"
	CodeQueueNotReady Code = "QUEUE_NOT_READY"
)

// Error is a structured API error.
type Error struct {
	code    Code
	message string
	status  int
	cause   error
}

// New creates an Error without a cause.
func New(code Code, status int, message string) *Error {
	return &Error{code: code, message: message, status: status}
}

// Wrap creates an Error that wraps a cause for logging/unwrapping.
func Wrap(code Code, status int, message string, cause error) *Error {
	return &Error{code: code, message: message, status: status, cause: cause}
}

// Error implements the error interface. Includes the cause for log output.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Unwrap returns the wrapped cause for errors.Is/errors.As chaining.
func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() Code      { return e.code }
func (e *Error) Message() string { return e.message }
func (e *Error) Status() int     { return e.status }

// ErrorResponse is the wire format written as JSON to the client.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the inner object of ErrorResponse.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Response returns the wire-format representation of this error.
func (e *Error) Response() ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    e.code,
			Message: e.message,
		},
	}
}
