package domain

import "context"

// Geocoder resolves a free-text Italian address.
type Geocoder interface {
	// Geocode looks up a single address query. A lookup that finds nothing
	// returns status NO_RESULT and a nil error; transport and decoding
	// failures return an error.
	Geocode(ctx context.Context, query string) (GeocodeResult, error)
}

// GeocodeQuery returns the text sent to the geocoder for a raw cadastral
// address: the structured rendering when it parses, the cleaned raw text
// otherwise.
func GeocodeQuery(raw string) string {
	if parsed, err := ParseAddress(raw); err == nil {
		return parsed.Query()
	}
	return collapseSpaces(raw)
}
