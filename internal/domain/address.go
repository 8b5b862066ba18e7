package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// addressHeaderRe splits the leading "COMUNE(PR)" from the street part,
	// e.g. "AGRATE BRIANZA(MI) VIA MONTE GRAPPA n. 17".
	addressHeaderRe = regexp.MustCompile(`^(.+?)\s*\(\s*([A-Za-z]{2})\s*\)\s*(.*)$`)

	// numberMarkerRe matches an explicit house-number marker: "n. 17", "N.17/A", "n° 3".
	numberMarkerRe = regexp.MustCompile(`(?i)(?:^|[\s,])n[.°]\s*(\d+[a-z/]{0,3})(?:[\s,]|$)`)

	// trailingNumberRe matches a street ending in a bare number token: "VIA ROMA 5B".
	trailingNumberRe = regexp.MustCompile(`(?i)^(.*?[a-z].*?)[\s,]+(\d+[a-z/]{0,3})$`)

	// noNumberRe matches the "senza numero civico" suffix.
	noNumberRe = regexp.MustCompile(`(?i)[\s,]+s\.?\s?n\.?\s?c\.?$`)

	numberTokenRe = regexp.MustCompile(`(?i)^\d+[a-z/]{0,3}$`)
	postalCodeRe  = regexp.MustCompile(`^\d{5}$`)

	// romanNumeralRe matches numerals up to 89 as used in street names
	// ("XXV APRILE", "VITTORIO EMANUELE II"). D and M are left out so the
	// preposition "DI" and province "MI" still title-case.
	romanNumeralRe = regexp.MustCompile(`^(?:XC|XL|L?X{0,3})(?:IX|IV|V?I{0,3})$`)
)

var italianMonths = map[string]bool{
	"GENNAIO": true, "FEBBRAIO": true, "MARZO": true, "APRILE": true,
	"MAGGIO": true, "GIUGNO": true, "LUGLIO": true, "AGOSTO": true,
	"SETTEMBRE": true, "OTTOBRE": true, "NOVEMBRE": true, "DICEMBRE": true,
}

// streetPattern extracts street name and number from the part of an address
// that follows the municipality header. Patterns are tried in order.
type streetPattern struct {
	name  string
	match func(rest string) (street, number string, ok bool)
}

var streetPatterns = []streetPattern{
	{name: "explicit_marker", match: matchNumberMarker},
	{name: "trailing_number", match: matchTrailingNumber},
	{name: "street_only", match: func(rest string) (string, string, bool) { return rest, "", true }},
}

func matchNumberMarker(rest string) (string, string, bool) {
	loc := numberMarkerRe.FindStringSubmatchIndex(rest)
	if loc == nil {
		return "", "", false
	}
	return rest[:loc[0]], rest[loc[2]:loc[3]], true
}

func matchTrailingNumber(rest string) (string, string, bool) {
	m := trailingNumberRe.FindStringSubmatch(rest)
	if m == nil || isDateStreet(m[1], m[2]) {
		return "", "", false
	}
	return m[1], m[2], true
}

// isDateStreet reports whether a trailing number is the year of a street
// named after a date, as in "VIA 2 GIUGNO 1946".
func isDateStreet(street, number string) bool {
	year, err := strconv.Atoi(number)
	if err != nil || year < 1800 || year > 2099 {
		return false
	}
	words := strings.Fields(street)
	if len(words) == 0 {
		return false
	}
	return italianMonths[strings.ToUpper(words[len(words)-1])]
}

// ParseAddress decomposes a cadastral address into municipality, province,
// street and house number. It returns an error wrapping ErrParseFailure when
// the address has no "COMUNE(PR)" header or no street.
func ParseAddress(raw string) (*ParsedAddress, error) {
	s := collapseSpaces(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty address", ErrParseFailure)
	}

	m := addressHeaderRe.FindStringSubmatch(s)
	if m == nil || !hasLetter(m[1]) {
		return nil, fmt.Errorf("%w: no municipality header in %q", ErrParseFailure, s)
	}
	municipality, province := strings.TrimSpace(m[1]), m[2]
	rest := noNumberRe.ReplaceAllString(m[3], "")

	for _, p := range streetPatterns {
		street, number, ok := p.match(rest)
		if !ok {
			continue
		}
		street = strings.Trim(street, " ,")
		if !hasLetter(street) {
			continue
		}
		return &ParsedAddress{
			Municipality: titleCase(municipality),
			Province:     strings.ToUpper(province),
			StreetName:   titleCase(street),
			StreetNumber: normalizeNumber(number),
		}, nil
	}
	return nil, fmt.Errorf("%w: no street in %q", ErrParseFailure, s)
}

// ExtractStreetNumber finds the house number in a geocoder's formatted
// address. It accepts both "Via Monte Grappa 17, 20864 Agrate Brianza" and
// "Via Monte Grappa, 17, 20864 Agrate Brianza MB". Postal codes are never
// taken for house numbers.
func ExtractStreetNumber(formatted string) string {
	s := collapseSpaces(formatted)
	if s == "" {
		return ""
	}
	if m := numberMarkerRe.FindStringSubmatch(s); m != nil {
		return normalizeNumber(m[1])
	}

	segments := strings.Split(s, ",")
	if _, number, ok := matchTrailingNumber(strings.TrimSpace(segments[0])); ok && !postalCodeRe.MatchString(number) {
		return normalizeNumber(number)
	}
	if len(segments) > 1 {
		seg := strings.TrimSpace(segments[1])
		if numberTokenRe.MatchString(seg) && !postalCodeRe.MatchString(seg) {
			return normalizeNumber(seg)
		}
	}
	return ""
}

// normalizeNumber upper-cases a house number and drops inner spaces,
// so "17 / a" and "17/A" compare equal.
func normalizeNumber(n string) string {
	return strings.ToUpper(strings.Join(strings.Fields(n), ""))
}

// titleCase applies Italian title casing. A Caser holds state, so one is
// built per call to keep ParseAddress safe for concurrent use.
func titleCase(s string) string {
	words := strings.Split(cases.Title(language.Italian).String(s), " ")
	for i, w := range words {
		if upper := strings.ToUpper(w); upper != "" && romanNumeralRe.MatchString(upper) {
			words[i] = upper
		}
	}
	return strings.Join(words, " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
