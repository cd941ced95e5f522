package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
)

// ApiResponse is the envelope for successful JSON responses.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidationErrorResponse lists row or field problems. Errors is capped for
// display; HiddenCount says how many more there were.
type ValidationErrorResponse struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	Errors      []string `json:"errors"`
	HiddenCount int      `json:"hidden_count"`
}

// UnbalancedErrorResponse rejects a confirmed change set that does not net
// to zero. Alerts say which side to adjust.
type UnbalancedErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Balance string   `json:"balance"`
	Alerts  []string `json:"alerts"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a service error onto a status code and writes it.
// Unexpected errors are logged and reported without their details.
func writeServiceError(w http.ResponseWriter, err error, action string, logger *zap.Logger, fields ...zap.Field) {
	var (
		validationErr *apperrors.ValidationError
		malformedErr  *apperrors.MalformedInputError
		unbalancedErr *apperrors.UnbalancedChangesError
		persistErr    *apperrors.PersistenceError
		writeErr      error
	)

	switch {
	case errors.As(err, &validationErr):
		shown, hidden := validationErr.Display()
		writeErr = WriteJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
			Error:       "validation_failed",
			Message:     action + " failed validation",
			Errors:      shown,
			HiddenCount: hidden,
		})
	case errors.As(err, &unbalancedErr):
		writeErr = WriteJSON(w, http.StatusBadRequest, UnbalancedErrorResponse{
			Error:   "unbalanced_changes",
			Message: unbalancedErr.Error(),
			Balance: unbalancedErr.Balance.StringFixed(2),
			Alerts:  unbalancedErr.Alerts,
		})
	case errors.As(err, &malformedErr):
		writeErr = ErrorResponse(w, http.StatusBadRequest, "malformed_file", malformedErr.Error())
	case errors.Is(err, apperrors.ErrFileTooLarge):
		writeErr = ErrorResponse(w, http.StatusRequestEntityTooLarge, "file_too_large", err.Error())
	case errors.Is(err, apperrors.ErrUnsupportedFile):
		writeErr = ErrorResponse(w, http.StatusBadRequest, "unsupported_file", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		writeErr = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		writeErr = ErrorResponse(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperrors.ErrProviderUnavailable):
		logger.Warn(action+" failed", append(fields, zap.Error(err))...)
		writeErr = ErrorResponse(w, http.StatusServiceUnavailable, "provider_unavailable", "Geocoding provider is unavailable")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is reading the response.
		logger.Debug(action+" canceled", fields...)
		return
	case errors.As(err, &persistErr):
		logger.Error(action+" failed", append(fields, zap.Error(err))...)
		writeErr = ErrorResponse(w, http.StatusInternalServerError, "persistence_failed", "Storage operation failed")
	default:
		logger.Error(action+" failed", append(fields, zap.Error(err))...)
		writeErr = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}

	if writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}

// writeOK writes data in the success envelope.
func writeOK(w http.ResponseWriter, status int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// badRequest writes a 400 with the given code and message.
func badRequest(w http.ResponseWriter, code, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
