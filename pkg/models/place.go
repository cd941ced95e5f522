package models

// AddressComponent is one typed part of a geocoded address.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Place is a geocoding candidate. Real provider results and local fallback
// results share this shape.
type Place struct {
	PlaceID           string             `json:"place_id"`
	Name              string             `json:"name"`
	FormattedAddress  string             `json:"formatted_address"`
	Lat               float64            `json:"lat"`
	Lng               float64            `json:"lng"`
	AddressComponents []AddressComponent `json:"address_components"`
}

// Component returns the long name of the first component with the given
// type, or "" when absent.
func (p *Place) Component(componentType string) string {
	for _, c := range p.AddressComponents {
		for _, t := range c.Types {
			if t == componentType {
				return c.LongName
			}
		}
	}
	return ""
}
