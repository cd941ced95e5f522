package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/adapters/geocoding"
	"github.com/nemaec/nemaec-engine/pkg/models"
)

// minQueryLength is the shortest search text worth sending to the provider.
const minQueryLength = 2

// PlaceSearchResponse for GET /api/geocoding/search
type PlaceSearchResponse struct {
	Places []models.Place `json:"places"`
	Total  int            `json:"total"`
}

// GeocodingHandler resolves facility locations.
type GeocodingHandler struct {
	provider geocoding.Provider
	logger   *zap.Logger
}

func NewGeocodingHandler(provider geocoding.Provider, logger *zap.Logger) *GeocodingHandler {
	return &GeocodingHandler{provider: provider, logger: logger}
}

// RegisterRoutes registers the geocoding routes on the given mux.
func (h *GeocodingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/geocoding/search", h.Search)
	mux.HandleFunc("GET /api/geocoding/places/{placeId}", h.Details)
}

// Search handles GET /api/geocoding/search?q=
func (h *GeocodingHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(query)) < minQueryLength {
		badRequest(w, "invalid_query", "Query parameter q must have at least 2 characters", h.logger)
		return
	}

	places, err := h.provider.Search(r.Context(), query)
	if err != nil {
		writeServiceError(w, err, "Search places", h.logger, zap.String("query", query))
		return
	}
	if places == nil {
		places = []models.Place{}
	}
	writeOK(w, http.StatusOK, PlaceSearchResponse{Places: places, Total: len(places)}, h.logger)
}

// Details handles GET /api/geocoding/places/{placeId}
func (h *GeocodingHandler) Details(w http.ResponseWriter, r *http.Request) {
	placeID := r.PathValue("placeId")
	if placeID == "" {
		badRequest(w, "invalid_place_id", "Place ID is required", h.logger)
		return
	}

	place, err := h.provider.Details(r.Context(), placeID)
	if err != nil {
		writeServiceError(w, err, "Get place details", h.logger, zap.String("place_id", placeID))
		return
	}
	writeOK(w, http.StatusOK, place, h.logger)
}
