package domain

import (
	"fmt"
	"sort"
	"strings"
)

// OwnershipRecord is one row of the cadastral extraction: a single owner's
// right on a single parcel.
type OwnershipRecord struct {
	Row            int    `json:"row"`
	Municipality   string `json:"municipality"`
	Province       string `json:"province,omitempty"`
	Sheet          string `json:"sheet"`
	Parcel         string `json:"parcel"`
	OwnerID        string `json:"owner_id"` // codice fiscale or partita IVA
	OwnerName      string `json:"owner_name"`
	Classification string `json:"classification,omitempty"`
	RawAddress     string `json:"raw_address"`
	OwnershipType  string `json:"ownership_type,omitempty"`
	Quota          string `json:"quota,omitempty"`
}

// ParcelID returns the canonical identity of the parcel this row refers to.
func (r OwnershipRecord) ParcelID() string {
	return ParcelID(r.Municipality, r.Sheet, r.Parcel)
}

// Parcel is a cadastral parcel in the campaign area.
type Parcel struct {
	Municipality string   `json:"municipality"`
	Province     string   `json:"province,omitempty"`
	Sheet        string   `json:"sheet"`
	Parcel       string   `json:"parcel"`
	Hectares     *float64 `json:"hectares,omitempty"`
}

func (p Parcel) ID() string { return ParcelID(p.Municipality, p.Sheet, p.Parcel) }

// ParcelID builds the canonical "MUNICIPALITY|sheet|parcel" key.
func ParcelID(municipality, sheet, parcel string) string {
	return strings.ToUpper(collapseSpaces(municipality)) + "|" +
		trimLeadingZeros(sheet) + "|" + trimLeadingZeros(parcel)
}

func trimLeadingZeros(s string) string {
	s = strings.TrimSpace(s)
	t := strings.TrimLeft(s, "0")
	if t == "" && s != "" {
		return "0"
	}
	return t
}

// ParsedAddress is the structured form of a cadastral address.
// StreetNumber is empty when the address carries no house number.
type ParsedAddress struct {
	Municipality string `json:"municipality"`
	Province     string `json:"province"`
	StreetName   string `json:"street_name"`
	StreetNumber string `json:"street_number,omitempty"`
}

// Street renders the street line, e.g. "Via Monte Grappa 17".
func (a ParsedAddress) Street() string {
	if a.StreetNumber == "" {
		return a.StreetName
	}
	return a.StreetName + " " + a.StreetNumber
}

// Query renders the address as a free-text geocoding query.
func (a ParsedAddress) Query() string {
	return fmt.Sprintf("%s, %s %s, Italia", a.Street(), a.Municipality, a.Province)
}

// GeocodeStatus is the outcome of a geocoding lookup.
type GeocodeStatus string

const (
	GeocodeSuccess    GeocodeStatus = "SUCCESS"
	GeocodeNoResult   GeocodeStatus = "NO_RESULT"
	GeocodeAPIError   GeocodeStatus = "API_ERROR"
	GeocodeEmptyInput GeocodeStatus = "EMPTY_INPUT"
)

// Canonical structured fields used for completeness scoring, in report order.
const (
	FieldStreetName = "street_name"
	FieldPostalCode = "postal_code"
	FieldCity       = "city"
	FieldProvince   = "province"
)

// CompletenessFields lists the fields counted by the completeness score.
var CompletenessFields = []string{FieldStreetName, FieldPostalCode, FieldCity, FieldProvince}

// GeocodeResult is the geocoder's view of one address.
type GeocodeResult struct {
	Status           GeocodeStatus `json:"status"`
	FormattedAddress string        `json:"formatted_address,omitempty"`
	StreetName       string        `json:"street_name,omitempty"`
	StreetNumber     string        `json:"street_number,omitempty"`
	PostalCode       string        `json:"postal_code,omitempty"`
	City             string        `json:"city,omitempty"`
	Province         string        `json:"province,omitempty"`
	Lat              *float64      `json:"lat,omitempty"`
	Lon              *float64      `json:"lon,omitempty"`
	Message          string        `json:"message,omitempty"`
}

// Err returns nil for a successful lookup and an error wrapping
// ErrGeocodeFailure otherwise.
func (g GeocodeResult) Err() error {
	if g.Status == GeocodeSuccess {
		return nil
	}
	if g.Message != "" {
		return fmt.Errorf("%w: %s: %s", ErrGeocodeFailure, g.Status, g.Message)
	}
	return fmt.Errorf("%w: %s", ErrGeocodeFailure, g.Status)
}

func (g GeocodeResult) field(name string) string {
	switch name {
	case FieldStreetName:
		return g.StreetName
	case FieldPostalCode:
		return g.PostalCode
	case FieldCity:
		return g.City
	case FieldProvince:
		return g.Province
	}
	return ""
}

// GeocodeSet maps normalized raw addresses to their geocode result.
type GeocodeSet map[string]GeocodeResult

// AddressKey normalizes a raw address for lookups: trimmed, whitespace
// collapsed, upper-cased.
func AddressKey(raw string) string {
	return strings.ToUpper(collapseSpaces(raw))
}

// Lookup finds the result for a raw address. Empty addresses always resolve to
// EMPTY_INPUT without consulting the set.
func (s GeocodeSet) Lookup(raw string) (GeocodeResult, bool) {
	key := AddressKey(raw)
	if key == "" {
		return GeocodeResult{Status: GeocodeEmptyInput}, true
	}
	g, ok := s[key]
	return g, ok
}

// NormalizeGeocodes re-keys results by AddressKey. When several raw keys
// normalize to the same address, a SUCCESS result beats a failure and ties go
// to the first raw key in sorted order.
func NormalizeGeocodes(in map[string]GeocodeResult) GeocodeSet {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(GeocodeSet, len(in))
	for _, k := range keys {
		key, g := AddressKey(k), in[k]
		if prev, seen := out[key]; seen && (prev.Status == GeocodeSuccess || g.Status != GeocodeSuccess) {
			continue
		}
		out[key] = g
	}
	return out
}

// NumberAgreement is the tri-state comparison of original and geocoded house numbers.
type NumberAgreement int

const (
	NumberUnknown NumberAgreement = iota
	NumberMatch
	NumberMismatch
)

func (n NumberAgreement) String() string {
	switch n {
	case NumberMatch:
		return "match"
	case NumberMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

func (n NumberAgreement) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

func (n *NumberAgreement) UnmarshalText(b []byte) error {
	switch string(b) {
	case "match":
		*n = NumberMatch
	case "mismatch":
		*n = NumberMismatch
	case "unknown", "":
		*n = NumberUnknown
	default:
		return fmt.Errorf("unknown number agreement %q", b)
	}
	return nil
}

// ReconciliationOutcome captures how well a geocode result agrees with the
// original address.
type ReconciliationOutcome struct {
	NumberMatch       NumberAgreement `json:"number_match"`
	CompletenessScore float64         `json:"completeness_score"`
	MissingFields     []string        `json:"missing_fields"`
	GeocodeStatus     GeocodeStatus   `json:"geocode_status"`
	AddressParsed     bool            `json:"address_parsed"`
}

// Confidence is the four-tier address confidence scale.
type Confidence string

const (
	ConfidenceUltraHigh Confidence = "ULTRA_HIGH"
	ConfidenceHigh      Confidence = "HIGH"
	ConfidenceMedium    Confidence = "MEDIUM"
	ConfidenceLow       Confidence = "LOW"
)

// ConfidenceTiers lists the tiers from best to worst.
var ConfidenceTiers = []Confidence{ConfidenceUltraHigh, ConfidenceHigh, ConfidenceMedium, ConfidenceLow}

// Channel is the outreach channel for a record.
type Channel string

const (
	ChannelDirectMail Channel = "DIRECT_MAIL"
	ChannelAgency     Channel = "AGENCY"
)

// ClassifiedRecord is one (owner, address) pair with its confidence and channel.
type ClassifiedRecord struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	OwnerName       string          `json:"owner_name"`
	ParcelIDs       []string        `json:"parcel_ids"`
	RawAddress      string          `json:"raw_address"`
	OriginalAddress *ParsedAddress  `json:"original_address,omitempty"`
	Geocode         GeocodeResult   `json:"geocode"`
	NumberMatch     NumberAgreement `json:"number_match"`
	Completeness    float64         `json:"completeness_score"`
	MissingFields   []string        `json:"missing_fields,omitempty"`
	Confidence      Confidence      `json:"confidence"`
	QualityNotes    string          `json:"quality_notes"`
	RoutingChannel  Channel         `json:"routing_channel"`
}

// FunnelType names one of the two funnels in a report.
type FunnelType string

const (
	FunnelLand    FunnelType = "LAND_ACQUISITION"
	FunnelContact FunnelType = "CONTACT_PROCESSING"
)

// FunnelStage is one row of a funnel. Hectares is nil when no parcel in the
// stage has a known area or the stage does not count parcels.
type FunnelStage struct {
	FunnelType    FunnelType `json:"funnel_type"`
	StageIndex    int        `json:"stage_index"`
	StageName     string     `json:"stage_name"`
	Count         int        `json:"count"`
	Hectares      *float64   `json:"hectares,omitempty"`
	Multiplier    float64    `json:"multiplier"`
	RetentionRate float64    `json:"retention_rate"`
	Rule          string     `json:"rule"`
}

// MailingAddress is the postal address chosen for a mailing entry.
type MailingAddress struct {
	Street     string `json:"street"`
	Number     string `json:"number,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city"`
	Province   string `json:"province"`
}

// Line renders the address as a single postal line.
func (a MailingAddress) Line() string {
	street := a.Street
	if a.Number != "" {
		street += " " + a.Number
	}
	city := strings.TrimSpace(a.PostalCode + " " + a.City)
	if a.Province != "" {
		city += " (" + a.Province + ")"
	}
	return street + ", " + city
}

// MailingListEntry is one (owner, address) row of the direct-mail list.
// ParcelIDs are the parcels reached through this address; OwnerParcelIDs are
// all parcels of the owner across their direct-mail addresses.
type MailingListEntry struct {
	RecordID       string         `json:"record_id"`
	OwnerID        string         `json:"owner_id"`
	FullName       string         `json:"full_name"`
	ParcelIDs      []string       `json:"parcel_ids"`
	OwnerParcelIDs []string       `json:"owner_parcel_ids"`
	Address        MailingAddress `json:"address"`
	Confidence     Confidence     `json:"confidence"`
}

// QualityRow is one tier of the address quality distribution.
type QualityRow struct {
	Confidence     Confidence `json:"confidence"`
	Count          int        `json:"count"`
	Percentage     float64    `json:"percentage"`
	RoutingChannel Channel    `json:"routing_channel"`
}

// ExcludedRow records an input row that was dropped before classification.
type ExcludedRow struct {
	Row        int    `json:"row"`
	OwnerID    string `json:"owner_id,omitempty"`
	ParcelID   string `json:"parcel_id,omitempty"`
	RawAddress string `json:"raw_address,omitempty"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
}

func excludedFromError(r OwnershipRecord, err *InputShapeError) ExcludedRow {
	return ExcludedRow{
		Row:        r.Row,
		OwnerID:    strings.TrimSpace(r.OwnerID),
		ParcelID:   r.ParcelID(),
		RawAddress: r.RawAddress,
		Reason:     err.Reason,
		Detail:     err.Detail,
	}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
