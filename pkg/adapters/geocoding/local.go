package geocoding

import (
	"context"
	"strings"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/metrics"
	"github.com/nemaec/nemaec-engine/pkg/models"
)

// LocalPlacePrefix marks place ids served from the bundled dataset.
const LocalPlacePrefix = "local-"

// LocalProvider answers from a small bundled set of Lima police stations.
// It never fails and is used when the real provider is unavailable.
type LocalProvider struct {
	places []models.Place
}

// NewLocalProvider returns a provider over the bundled dataset.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{places: localPlaces()}
}

var _ Provider = (*LocalProvider)(nil)

func (p *LocalProvider) Name() string { return "local" }

// Search returns dataset entries whose name or address contains every word
// of the query. An empty query returns the whole dataset.
func (p *LocalProvider) Search(_ context.Context, query string) ([]models.Place, error) {
	terms := strings.Fields(fold(query))
	out := make([]models.Place, 0)
	for _, place := range p.places {
		text := fold(place.Name) + " " + fold(place.FormattedAddress)
		if containsAll(text, terms) {
			out = append(out, clonePlace(place))
		}
		if len(out) == MaxResults {
			break
		}
	}
	metrics.GeocodingLookups.WithLabelValues(p.Name(), opSearch, metrics.LookupResultOK).Inc()
	return out, nil
}

// Details returns the dataset entry with placeID.
func (p *LocalProvider) Details(_ context.Context, placeID string) (*models.Place, error) {
	for _, place := range p.places {
		if place.PlaceID == placeID {
			c := clonePlace(place)
			metrics.GeocodingLookups.WithLabelValues(p.Name(), opDetails, metrics.LookupResultOK).Inc()
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func containsAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

func clonePlace(p models.Place) models.Place {
	components := make([]models.AddressComponent, len(p.AddressComponents))
	for i, c := range p.AddressComponents {
		c.Types = append([]string(nil), c.Types...)
		components[i] = c
	}
	p.AddressComponents = components
	return p
}

func limaComponents(district string) []models.AddressComponent {
	return []models.AddressComponent{
		{LongName: district, ShortName: district, Types: []string{"locality", "political"}},
		{LongName: "Lima", ShortName: "Lima", Types: []string{"administrative_area_level_2", "political"}},
		{LongName: "Lima", ShortName: "LIM", Types: []string{"administrative_area_level_1", "political"}},
		{LongName: "Peru", ShortName: "PE", Types: []string{"country", "political"}},
	}
}

func localPlaces() []models.Place {
	entry := func(id, name, address, district string, lat, lng float64) models.Place {
		return models.Place{
			PlaceID:           LocalPlacePrefix + id,
			Name:              name,
			FormattedAddress:  address + ", " + district + ", Lima, Peru",
			Lat:               lat,
			Lng:               lng,
			AddressComponents: limaComponents(district),
		}
	}
	return []models.Place{
		entry("001", "Comisaría PNP Alfonso Ugarte", "Av. Alfonso Ugarte 1020", "Cercado de Lima", -12.0553, -77.0416),
		entry("002", "Comisaría PNP San Isidro", "Calle Andrés Reyes 300", "San Isidro", -12.0956, -77.0286),
		entry("003", "Comisaría PNP Miraflores", "Calle Gral. Borgoño 290", "Miraflores", -12.1211, -77.0297),
		entry("004", "Comisaría PNP San Borja", "Av. San Luis 2350", "San Borja", -12.0994, -76.9956),
		entry("005", "Comisaría PNP Surquillo", "Av. Angamos Este 1515", "Surquillo", -12.1125, -77.0149),
		entry("006", "Comisaría PNP La Victoria", "Av. Iquitos 1100", "La Victoria", -12.0697, -77.0282),
		entry("007", "Comisaría PNP Santa Anita", "Av. Los Ruiseñores 520", "Santa Anita", -12.0436, -76.9689),
		entry("008", "Comisaría PNP San Juan de Lurigancho", "Av. Próceres de la Independencia 1650", "San Juan de Lurigancho", -12.0018, -77.0024),
		entry("009", "Comisaría PNP Villa El Salvador", "Av. Revolución 800", "Villa El Salvador", -12.2137, -76.9411),
		entry("010", "Comisaría PNP Callao", "Jr. Paz Soldán 170", "Callao", -12.0566, -77.1181),
	}
}
