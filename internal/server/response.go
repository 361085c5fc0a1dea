// Package server provides the HTTP server, router, middleware, and JSON
// response helpers for Cornerstone.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FieldError represents a single field-level validation error in an API response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// successResponse wraps a single data item.
type successResponse struct {
	Data any `json:"data"`
}

// envelopeResponse is the {data, meta} body of content responses.
type envelopeResponse struct {
	Data any `json:"data"`
	Meta any `json:"meta"`
}

// errorBody is the inner structure of an error response.
type errorBody struct {
	Status  int          `json:"status"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// errorResponse is the top-level error response envelope.
type errorResponse struct {
	Error errorBody `json:"error"`
}

// JSON writes {"data": data} with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Data: data})
}

// Envelope writes {"data": data, "meta": meta}. A nil meta is written as an
// empty object.
func Envelope(w http.ResponseWriter, status int, data, meta any) {
	if meta == nil {
		meta = map[string]any{}
	}
	writeJSON(w, status, envelopeResponse{Data: data, Meta: meta})
}

// Error writes a JSON error response with the given status code, error code,
// message, and optional field-level details.
func Error(w http.ResponseWriter, status int, code string, message string, details []FieldError) {
	writeJSON(w, status, errorResponse{
		Error: errorBody{
			Status:  status,
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteError maps err to an error response by its go-errors category.
// Uncategorized errors are logged and reported as a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func classify(err error) (int, errorBody) {
	var ge *goerrors.Error
	if !errors.As(err, &ge) {
		return http.StatusInternalServerError, errorBody{
			Status:  http.StatusInternalServerError,
			Code:    "INTERNAL_ERROR",
			Message: "an internal error occurred",
		}
	}

	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	message := ge.Message
	switch ge.Category {
	case goerrors.CategoryBadInput:
		status, code = http.StatusBadRequest, "BAD_REQUEST"
	case goerrors.CategoryValidation:
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case goerrors.CategoryNotFound:
		status, code = http.StatusNotFound, "NOT_FOUND"
	default:
		message = "an internal error occurred"
	}
	if ge.TextCode != "" && status < http.StatusInternalServerError {
		code = ge.TextCode
	}

	var details []FieldError
	for _, fe := range ge.ValidationErrors {
		details = append(details, FieldError{Field: fe.Field, Message: fe.Message})
	}
	return status, errorBody{Status: status, Code: code, Message: message, Details: details}
}

// writeJSON marshals v to JSON and writes it to the response writer.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; only logging is left.
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}
