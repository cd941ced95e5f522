package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseFacilityID extracts and validates the facility ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: fid
func ParseFacilityID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "fid", "invalid_facility_id", "Invalid facility ID format", logger)
}

// ParseScheduleID extracts and validates the schedule ID from the request path.
// Expects path parameter: sid
func ParseScheduleID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "sid", "invalid_schedule_id", "Invalid schedule ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUIDValue(w, r.PathValue(pathParam), errorCode, errorMessage, logger)
}

// parseUUIDValue parses raw, writing a 400 when it is not a UUID.
func parseUUIDValue(w http.ResponseWriter, raw, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(w, errorCode, errorMessage, logger)
		return uuid.Nil, false
	}
	return id, true
}
