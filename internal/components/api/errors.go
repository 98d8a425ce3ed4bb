// Package api provides JSON response helpers shared by services and
// interceptors, including the error envelope.
package api

import (
	"net/http"

	"github.com/go-json-experiment/json"

	"github.com/jose/handlerchain/internal/chain"
)

// Reason codes are stable across versions; clients may switch on them.
const (
	ReasonUnauthorized     = "unauthorized"
	ReasonRateLimited      = "rate_limited"
	ReasonBadRequest       = "bad_request"
	ReasonInvalidField     = "invalid_field"
	ReasonNotFound         = "not_found"
	ReasonInternalError    = "internal_error"
	ReasonStoreUnavailable = "store_unavailable"
)

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code       string `json:"code"`        // HTTP status text, e.g. "Too Many Requests"
	ReasonCode string `json:"reason_code"` // one of the Reason* constants
	Message    string `json:"message"`
}

func newEnvelope(statusCode int, reasonCode, message string) ErrorEnvelope {
	return ErrorEnvelope{
		Error: ErrorDetail{
			Code:       http.StatusText(statusCode),
			ReasonCode: reasonCode,
			Message:    message,
		},
	}
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.MarshalWrite(w, v)
}

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, statusCode int, reasonCode, message string) {
	_ = WriteJSON(w, statusCode, newEnvelope(statusCode, reasonCode, message))
}

// WriteBadRequest writes a 400 Bad Request error.
func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

// WriteNotFound writes a 404 Not Found error.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

// WriteInternalError writes a 500 Internal Server Error.
// The message is sent to the client as is, so keep internals out of it.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}

// JSONResponse encodes v into a chain response. Interceptors use it to build
// short-circuit responses without touching the ResponseWriter.
func JSONResponse(statusCode int, v any) (*chain.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &chain.Response{Status: statusCode, Header: h, Body: body}, nil
}

// ErrorResponse is the chain response counterpart of WriteError.
func ErrorResponse(statusCode int, reasonCode, message string) *chain.Response {
	// An envelope of plain strings always encodes.
	resp, _ := JSONResponse(statusCode, newEnvelope(statusCode, reasonCode, message))
	return resp
}
