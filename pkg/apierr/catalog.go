package apierr

import "net/http"

func InvalidRequestBody() *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body")
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

func NodeNotFound() *Error {
	return New(CodeNodeNotFound, http.StatusNotFound, "Node not found")
}

func GraphQueryFailed(cause error) *Error {
	return Wrap(CodeGraphQueryFailed, http.StatusInternalServerError, "Graph query failed", cause)
}

func SymbolListFailed(cause error) *Error {
	return Wrap(CodeSymbolListFailed, http.StatusInternalServerError, "Failed to list symbols", cause)
}

func MissingAPIKey() *Error {
	return New(CodeMissingAPIKey, http.StatusUnauthorized, "Missing X-API-Key header")
}

func InvalidAPIKey() *Error {
	return New(CodeInvalidAPIKey, http.StatusUnauthorized, "Invalid API key")
}

func DestructiveQuery() *Error {
	return New(CodeDestructiveQuery, http.StatusBadRequest, "Query contains a destructive operation; use the admin endpoints instead")
}

func QueryRequired() *Error {
	return New(CodeQueryRequired, http.StatusBadRequest, "Query is required")
}

func ScanTriggerFailed(cause error) *Error {
	return Wrap(CodeScanTriggerFailed, http.StatusInternalServerError, "Failed to enqueue scan", cause)
}

func GraphClearFailed(cause error) *Error {
	return Wrap(CodeGraphClearFailed, http.StatusInternalServerError, "Failed to clear graph", cause)
}

func GraphNotReady() *Error {
	return New(CodeGraphNotReady, http.StatusServiceUnavailable, "Graph database not ready")
}
