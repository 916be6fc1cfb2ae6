package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody represents a consistent error payload returned by the API. Fields
// carries field-keyed validation messages when the error is a 422-style
// rejection; callers map them one-to-one onto form fields.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details any               `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// JSONFieldErrors renders a 422-style response with per-field messages.
func JSONFieldErrors(w http.ResponseWriter, code, message string, fields map[string]string) {
	JSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Fields:  fields,
		},
	})
}
