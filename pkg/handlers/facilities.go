package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/models"
	"github.com/nemaec/nemaec-engine/pkg/services"
)

// FacilityListResponse for GET /api/facilities
type FacilityListResponse struct {
	Facilities []*models.Facility `json:"facilities"`
	Total      int                `json:"total"`
}

// FacilitiesHandler handles facility registry HTTP requests.
type FacilitiesHandler struct {
	facilityService services.FacilityService
	logger          *zap.Logger
}

// NewFacilitiesHandler creates a new facilities handler.
func NewFacilitiesHandler(facilityService services.FacilityService, logger *zap.Logger) *FacilitiesHandler {
	return &FacilitiesHandler{
		facilityService: facilityService,
		logger:          logger,
	}
}

// RegisterRoutes registers the facility routes on the given mux.
func (h *FacilitiesHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/facilities"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("GET "+base+"/{fid}", h.Get)
	mux.HandleFunc("PUT "+base+"/{fid}", h.Update)
	mux.HandleFunc("DELETE "+base+"/{fid}", h.Delete)
}

// List handles GET /api/facilities?status=&type=&department=&name=
func (h *FacilitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.FacilityFilter{
		Status:     q.Get("status"),
		Type:       q.Get("type"),
		Department: q.Get("department"),
		Name:       q.Get("name"),
	}

	facilities, err := h.facilityService.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err, "List facilities", h.logger)
		return
	}
	if facilities == nil {
		facilities = []*models.Facility{}
	}
	writeOK(w, http.StatusOK, FacilityListResponse{Facilities: facilities, Total: len(facilities)}, h.logger)
}

// Create handles POST /api/facilities
func (h *FacilitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var facility models.Facility
	if err := json.NewDecoder(r.Body).Decode(&facility); err != nil {
		badRequest(w, "invalid_request", "Invalid request body", h.logger)
		return
	}

	created, err := h.facilityService.Create(r.Context(), &facility)
	if err != nil {
		writeServiceError(w, err, "Create facility", h.logger, zap.String("code", facility.Code))
		return
	}

	h.logger.Info("Facility created",
		zap.String("facility_id", created.ID.String()),
		zap.String("code", created.Code))
	writeOK(w, http.StatusCreated, created, h.logger)
}

// Get handles GET /api/facilities/{fid}
func (h *FacilitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}

	facility, err := h.facilityService.Get(r.Context(), facilityID)
	if err != nil {
		writeServiceError(w, err, "Get facility", h.logger, zap.String("facility_id", facilityID.String()))
		return
	}
	writeOK(w, http.StatusOK, facility, h.logger)
}

// Update handles PUT /api/facilities/{fid}. The body replaces the stored facility.
func (h *FacilitiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}

	var facility models.Facility
	if err := json.NewDecoder(r.Body).Decode(&facility); err != nil {
		badRequest(w, "invalid_request", "Invalid request body", h.logger)
		return
	}
	facility.ID = facilityID

	updated, err := h.facilityService.Update(r.Context(), &facility)
	if err != nil {
		writeServiceError(w, err, "Update facility", h.logger, zap.String("facility_id", facilityID.String()))
		return
	}
	writeOK(w, http.StatusOK, updated, h.logger)
}

// Delete handles DELETE /api/facilities/{fid}. Facilities with schedules
// cannot be deleted.
func (h *FacilitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.facilityService.Delete(r.Context(), facilityID); err != nil {
		writeServiceError(w, err, "Delete facility", h.logger, zap.String("facility_id", facilityID.String()))
		return
	}

	h.logger.Info("Facility deleted", zap.String("facility_id", facilityID.String()))
	w.WriteHeader(http.StatusNoContent)
}
