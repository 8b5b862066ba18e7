package domain

// Reconcile compares an original address with the geocoder's result.
//
// The geocoded house number is read from the formatted address first and
// falls back to the structured StreetNumber. Agreement is unknown when either
// side has no number. A failed lookup scores zero with every field missing.
func Reconcile(original *ParsedAddress, geocode GeocodeResult) ReconciliationOutcome {
	out := ReconciliationOutcome{
		NumberMatch:   NumberUnknown,
		GeocodeStatus: geocode.Status,
		AddressParsed: original != nil,
		MissingFields: []string{},
	}
	if geocode.Status != GeocodeSuccess {
		out.MissingFields = append(out.MissingFields, CompletenessFields...)
		return out
	}

	present := 0
	for _, f := range CompletenessFields {
		if geocode.field(f) != "" {
			present++
			continue
		}
		out.MissingFields = append(out.MissingFields, f)
	}
	out.CompletenessScore = float64(present) / float64(len(CompletenessFields))

	if original == nil {
		return out
	}
	out.NumberMatch = compareNumbers(original.StreetNumber, geocodedNumber(geocode))
	return out
}

func geocodedNumber(g GeocodeResult) string {
	if n := ExtractStreetNumber(g.FormattedAddress); n != "" {
		return n
	}
	return normalizeNumber(g.StreetNumber)
}

func compareNumbers(original, geocoded string) NumberAgreement {
	original, geocoded = normalizeNumber(original), normalizeNumber(geocoded)
	switch {
	case original == "" || geocoded == "":
		return NumberUnknown
	case original == geocoded:
		return NumberMatch
	default:
		return NumberMismatch
	}
}
