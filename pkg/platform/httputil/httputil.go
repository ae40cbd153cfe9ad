// Package httputil centralizes JSON response writing so every handler emits
// the same envelope. Error responses carry {"error": code,
// "error_description": message}; internal errors omit the description so
// nothing from the guts of the system reaches a client.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "d1gate/pkg/domain-errors"
)

// statusByCode maps domain error codes to HTTP statuses. Conflicts map to
// 400 because the admin UI treats duplicate-identity registration failures
// as plain client errors.
var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:   http.StatusBadRequest,
	dErrors.CodeValidation:   http.StatusBadRequest,
	dErrors.CodeConflict:     http.StatusBadRequest,
	dErrors.CodeUnauthorized: http.StatusUnauthorized,
	dErrors.CodeForbidden:    http.StatusForbidden,
	dErrors.CodeNotFound:     http.StatusNotFound,
	dErrors.CodeInternal:     http.StatusInternalServerError,
}

// StatusOf returns the HTTP status for a domain error code.
func StatusOf(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the standard error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if msg := dErrors.MessageOf(err); msg != "" {
			body["error_description"] = msg
		}
	}
	WriteJSON(w, StatusOf(code), body)
}
