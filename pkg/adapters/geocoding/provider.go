// Package geocoding resolves facility locations through a maps provider,
// degrading to a bundled dataset when the provider cannot be reached.
package geocoding

import (
	"context"
	"strings"

	"github.com/nemaec/nemaec-engine/pkg/models"
)

// Provider looks up places. Search returns candidates for free text;
// Details returns one place by id or apperrors.ErrNotFound. Errors wrapping
// apperrors.ErrProviderUnavailable mean the provider itself could not answer.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]models.Place, error)
	Details(ctx context.Context, placeID string) (*models.Place, error)
}

// Lookup operations, used as metric labels.
const (
	opSearch  = "search"
	opDetails = "details"
)

// MaxResults caps how many candidates a search returns.
const MaxResults = 10

// policeKeywords identify police and public-safety places among search results.
var policeKeywords = []string{
	"comisaria", "cpnp", "policia", "pnp", "estacion", "dependencia",
	"sector", "serenazgo", "seguridad ciudadana", "seguridad",
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u",
)

// fold lower-cases s and strips Spanish accents for matching.
func fold(s string) string {
	return accentFolder.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// isPoliceRelated reports whether a place name or address mentions a police keyword.
func isPoliceRelated(p models.Place) bool {
	text := fold(p.Name) + " " + fold(p.FormattedAddress)
	for _, kw := range policeKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
