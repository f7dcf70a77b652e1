package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"docstage/internal/blob"
	"docstage/internal/intake"
	"docstage/internal/schema"
	"docstage/internal/stage"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeLocked          = "LOCKED"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternalError   = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes {"error":{"code":...,"message":...}} with statusCode.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, schema.ErrUnknownCollection):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, intake.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, CodeFileTooLarge
	case errors.Is(err, schema.ErrInvalidKey), errors.Is(err, stage.ErrInvalidFile):
		return http.StatusBadRequest, CodeValidationError
	case errors.Is(err, blob.ErrLocked):
		return http.StatusLocked, CodeLocked
	case errors.Is(err, stage.ErrOpen):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
