// Package api exposes the HTTP surface: the sensor upload endpoint and the
// tenant-scoped admin API for threats, rules, incidents, alerts and the
// block list.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"blackwolf/core"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFromError maps the error taxonomy onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnprocessableState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrExternalDependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs the full error and sends the client a classified status
// with the error's message. Internal errors are masked.
func writeError(w http.ResponseWriter, err error, logger *zap.SugaredLogger) {
	status := statusFromError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Errorw("Request failed", "error", err)
		message = "internal server error"
	} else {
		logger.Debugw("Request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON parses a request body, mapping malformed input to the invalid
// request class.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", core.ErrInvalidRequest)
	}
	return nil
}
