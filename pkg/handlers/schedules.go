package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/models"
	"github.com/nemaec/nemaec-engine/pkg/services"
)

// multipartOverhead is the allowance on top of the file size for the other
// multipart fields and boundaries.
const multipartOverhead = 1 << 20

// dateLayout is how date filters are written in query strings.
const dateLayout = "2006-01-02"

// ============================================================================
// Request/Response Types
// ============================================================================

// ScheduleVersionsResponse for GET /api/facilities/{fid}/schedules
type ScheduleVersionsResponse struct {
	Versions []*models.ScheduleVersion `json:"versions"`
	Total    int                       `json:"total"`
}

// ScheduleLinesResponse for GET /api/schedules/{sid}/lines
type ScheduleLinesResponse struct {
	Lines []*models.LineItem `json:"lines"`
	Total int                `json:"total"`
}

// ScheduleTreeResponse for GET /api/schedules/{sid}/tree
type ScheduleTreeResponse struct {
	Nodes []models.TreeNode `json:"nodes"`
}

// ============================================================================
// Handler
// ============================================================================

// SchedulesHandler handles schedule import, versioning and analysis requests.
type SchedulesHandler struct {
	scheduleService services.ScheduleService
	maxUploadBytes  int64
	logger          *zap.Logger
}

// NewSchedulesHandler creates a new schedules handler. maxUploadBytes caps
// the uploaded file size.
func NewSchedulesHandler(scheduleService services.ScheduleService, maxUploadBytes int64, logger *zap.Logger) *SchedulesHandler {
	return &SchedulesHandler{
		scheduleService: scheduleService,
		maxUploadBytes:  maxUploadBytes,
		logger:          logger,
	}
}

// RegisterRoutes registers the schedule routes on the given mux.
func (h *SchedulesHandler) RegisterRoutes(mux *http.ServeMux) {
	facility := "/api/facilities/{fid}/schedules"
	schedule := "/api/schedules"

	mux.HandleFunc("POST "+facility, h.Import)
	mux.HandleFunc("GET "+facility, h.ListVersions)
	mux.HandleFunc("GET "+facility+"/current", h.Current)
	mux.HandleFunc("POST "+facility+"/preview-changes", h.PreviewChanges)
	mux.HandleFunc("POST "+facility+"/confirm", h.ConfirmVersion)

	mux.HandleFunc("POST "+schedule+"/validate", h.Validate)
	mux.HandleFunc("GET "+schedule+"/compare", h.Compare)
	mux.HandleFunc("GET "+schedule+"/{sid}", h.Get)
	mux.HandleFunc("GET "+schedule+"/{sid}/tree", h.Tree)
	mux.HandleFunc("GET "+schedule+"/{sid}/stats", h.Stats)
	mux.HandleFunc("GET "+schedule+"/{sid}/lines", h.SearchLines)
	mux.HandleFunc("POST "+schedule+"/{sid}/archive", h.Archive)
	mux.HandleFunc("DELETE "+schedule+"/{sid}", h.Purge)
}

// Import handles POST /api/facilities/{fid}/schedules (multipart: file, name)
func (h *SchedulesHandler) Import(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	schedule, err := h.scheduleService.ImportSchedule(r.Context(), facilityID, fileName, data, r.FormValue("name"))
	if err != nil {
		writeServiceError(w, err, "Import schedule", h.logger,
			zap.String("facility_id", facilityID.String()),
			zap.String("file", fileName))
		return
	}
	writeOK(w, http.StatusCreated, schedule, h.logger)
}

// Validate handles POST /api/schedules/validate (multipart: file). Nothing is stored.
func (h *SchedulesHandler) Validate(w http.ResponseWriter, r *http.Request) {
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	report, err := h.scheduleService.ValidateFile(r.Context(), fileName, data)
	if err != nil {
		writeServiceError(w, err, "Validate schedule", h.logger, zap.String("file", fileName))
		return
	}
	writeOK(w, http.StatusOK, report, h.logger)
}

// PreviewChanges handles POST /api/facilities/{fid}/schedules/preview-changes (multipart: file)
func (h *SchedulesHandler) PreviewChanges(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	preview, err := h.scheduleService.PreviewChanges(r.Context(), facilityID, fileName, data)
	if err != nil {
		writeServiceError(w, err, "Preview schedule changes", h.logger,
			zap.String("facility_id", facilityID.String()),
			zap.String("file", fileName))
		return
	}
	writeOK(w, http.StatusOK, preview, h.logger)
}

// ConfirmVersion handles POST /api/facilities/{fid}/schedules/confirm
// (multipart: file, name, monitor, confirmations as a JSON array)
func (h *SchedulesHandler) ConfirmVersion(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	confirmation := services.VersionConfirmation{Monitor: r.FormValue("monitor")}
	if raw := r.FormValue("confirmations"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &confirmation.Changes); err != nil {
			badRequest(w, "invalid_confirmations", "confirmations must be a JSON array: "+err.Error(), h.logger)
			return
		}
	}

	schedule, err := h.scheduleService.ConfirmVersion(r.Context(), facilityID, fileName, data, r.FormValue("name"), confirmation)
	if err != nil {
		writeServiceError(w, err, "Confirm schedule version", h.logger,
			zap.String("facility_id", facilityID.String()),
			zap.String("file", fileName),
			zap.String("monitor", confirmation.Monitor))
		return
	}
	writeOK(w, http.StatusCreated, schedule, h.logger)
}

// ListVersions handles GET /api/facilities/{fid}/schedules
func (h *SchedulesHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}

	versions, err := h.scheduleService.ListVersions(r.Context(), facilityID)
	if err != nil {
		writeServiceError(w, err, "List schedule versions", h.logger, zap.String("facility_id", facilityID.String()))
		return
	}
	if versions == nil {
		versions = []*models.ScheduleVersion{}
	}
	writeOK(w, http.StatusOK, ScheduleVersionsResponse{Versions: versions, Total: len(versions)}, h.logger)
}

// Current handles GET /api/facilities/{fid}/schedules/current
func (h *SchedulesHandler) Current(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := ParseFacilityID(w, r, h.logger)
	if !ok {
		return
	}

	schedule, err := h.scheduleService.GetCurrentSchedule(r.Context(), facilityID)
	if err != nil {
		writeServiceError(w, err, "Get current schedule", h.logger, zap.String("facility_id", facilityID.String()))
		return
	}
	if schedule == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "no_current_schedule", "Facility has no active schedule"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	writeOK(w, http.StatusOK, schedule, h.logger)
}

// Get handles GET /api/schedules/{sid}
func (h *SchedulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := ParseScheduleID(w, r, h.logger)
	if !ok {
		return
	}

	schedule, err := h.scheduleService.GetSchedule(r.Context(), scheduleID)
	if err != nil {
		writeServiceError(w, err, "Get schedule", h.logger, zap.String("schedule_id", scheduleID.String()))
		return
	}
	writeOK(w, http.StatusOK, schedule, h.logger)
}

// Tree handles GET /api/schedules/{sid}/tree
func (h *SchedulesHandler) Tree(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := ParseScheduleID(w, r, h.logger)
	if !ok {
		return
	}

	nodes, err := h.scheduleService.GetTree(r.Context(), scheduleID)
	if err != nil {
		writeServiceError(w, err, "Get schedule tree", h.logger, zap.String("schedule_id", scheduleID.String()))
		return
	}
	if nodes == nil {
		nodes = []models.TreeNode{}
	}
	writeOK(w, http.StatusOK, ScheduleTreeResponse{Nodes: nodes}, h.logger)
}

// Stats handles GET /api/schedules/{sid}/stats
func (h *SchedulesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := ParseScheduleID(w, r, h.logger)
	if !ok {
		return
	}

	stats, err := h.scheduleService.GetStats(r.Context(), scheduleID)
	if err != nil {
		writeServiceError(w, err, "Get schedule stats", h.logger, zap.String("schedule_id", scheduleID.String()))
		return
	}
	writeOK(w, http.StatusOK, stats, h.logger)
}

// SearchLines handles GET /api/schedules/{sid}/lines with optional filters:
// code, description, depth, from, to (YYYY-MM-DD), min_cost, max_cost.
func (h *SchedulesHandler) SearchLines(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := ParseScheduleID(w, r, h.logger)
	if !ok {
		return
	}

	filter, err := parseLineFilter(r)
	if err != nil {
		badRequest(w, "invalid_filter", err.Error(), h.logger)
		return
	}

	lines, err := h.scheduleService.SearchLines(r.Context(), scheduleID, filter)
	if err != nil {
		writeServiceError(w, err, "Search schedule lines", h.logger, zap.String("schedule_id", scheduleID.String()))
		return
	}
	if lines == nil {
		lines = []*models.LineItem{}
	}
	writeOK(w, http.StatusOK, ScheduleLinesResponse{Lines: lines, Total: len(lines)}, h.logger)
}

// Compare handles GET /api/schedules/compare?old={sid}&new={sid}
func (h *SchedulesHandler) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	oldID, ok := parseUUIDValue(w, q.Get("old"), "invalid_schedule_id", "Query parameter old must be a schedule ID", h.logger)
	if !ok {
		return
	}
	newID, ok := parseUUIDValue(w, q.Get("new"), "invalid_schedule_id", "Query parameter new must be a schedule ID", h.logger)
	if !ok {
		return
	}

	diff, err := h.scheduleService.CompareVersions(r.Context(), oldID, newID)
	if err != nil {
		writeServiceError(w, err, "Compare schedules", h.logger,
			zap.String("old_schedule_id", oldID.String()),
			zap.String("new_schedule_id", newID.String()))
		return
	}
	writeOK(w, http.StatusOK, diff, h.logger)
}

// Archive handles POST /api/schedules/{sid}/archive
func (h *SchedulesHandler) Archive(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := ParseScheduleID(w, r, h.logger)
	if !ok {
		return
	}

	schedule, err := h.scheduleService.ArchiveSchedule(r.Context(), scheduleID)
	if err != nil {
		writeServiceError(w, err, "Archive schedule", h.logger, zap.String("schedule_id", scheduleID.String()))
		return
	}
	writeOK(w, http.StatusOK, schedule, h.logger)
}

// Purge handles DELETE /api/schedules/{sid}. The version and its lines are
// removed permanently.
func (h *SchedulesHandler) Purge(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := ParseScheduleID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.scheduleService.PurgeSchedule(r.Context(), scheduleID); err != nil {
		writeServiceError(w, err, "Purge schedule", h.logger, zap.String("schedule_id", scheduleID.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readUpload returns the name and content of the multipart "file" field,
// writing an error response and returning false when it is missing or too big.
func (h *SchedulesHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			if err := ErrorResponse(w, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("File exceeds the %d byte limit", h.maxUploadBytes)); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return "", nil, false
		}
		badRequest(w, "missing_file", "Multipart field \"file\" is required", h.logger)
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", zap.String("file", header.Filename), zap.Error(err))
		badRequest(w, "unreadable_file", "Uploaded file could not be read", h.logger)
		return "", nil, false
	}
	return header.Filename, data, true
}

func parseLineFilter(r *http.Request) (models.LineFilter, error) {
	q := r.URL.Query()
	filter := models.LineFilter{
		Code:        q.Get("code"),
		Description: q.Get("description"),
	}

	if v := q.Get("depth"); v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil || depth < 1 {
			return filter, fmt.Errorf("depth must be a positive integer")
		}
		filter.Depth = depth
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return filter, fmt.Errorf("%s must be a date in YYYY-MM-DD format", p.name)
		}
		*p.dst = &t
	}

	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{{"min_cost", &filter.MinCost}, {"max_cost", &filter.MaxCost}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return filter, fmt.Errorf("%s must be a number", p.name)
		}
		*p.dst = &d
	}

	return filter, nil
}
