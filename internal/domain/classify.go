package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Completeness thresholds for the confidence tiers.
const (
	completeThreshold = 0.75
	goodThreshold     = 0.5
)

// classificationRule is one row of the confidence rule table. Rules are
// evaluated in order and the first that applies wins.
type classificationRule struct {
	name       string
	applies    func(o ReconciliationOutcome) bool
	confidence Confidence
	note       string
}

var classificationRules = []classificationRule{
	{
		name:       "geocode_failed",
		applies:    func(o ReconciliationOutcome) bool { return o.GeocodeStatus != GeocodeSuccess },
		confidence: ConfidenceLow,
		note:       "geocoding failed",
	},
	{
		name:       "original_unparsed",
		applies:    func(o ReconciliationOutcome) bool { return !o.AddressParsed },
		confidence: ConfidenceLow,
		note:       "could not parse original address",
	},
	{
		name: "exact_complete",
		applies: func(o ReconciliationOutcome) bool {
			return o.NumberMatch == NumberMatch && o.CompletenessScore >= completeThreshold
		},
		confidence: ConfidenceUltraHigh,
		note:       "exact number match, complete geocoding data",
	},
	{
		name: "exact_good",
		applies: func(o ReconciliationOutcome) bool {
			return o.NumberMatch == NumberMatch && o.CompletenessScore >= goodThreshold
		},
		confidence: ConfidenceHigh,
		note:       "exact number match, good geocoding data",
	},
	{
		name:       "exact_incomplete",
		applies:    func(o ReconciliationOutcome) bool { return o.NumberMatch == NumberMatch },
		confidence: ConfidenceMedium,
		note:       "exact match but incomplete data",
	},
	{
		name: "mismatch_good",
		applies: func(o ReconciliationOutcome) bool {
			return o.NumberMatch == NumberMismatch && o.CompletenessScore >= goodThreshold
		},
		confidence: ConfidenceMedium,
		note:       "street number mismatch, good geocoding data",
	},
	{
		name: "unverified_good",
		applies: func(o ReconciliationOutcome) bool {
			return o.NumberMatch == NumberUnknown && o.CompletenessScore >= goodThreshold
		},
		confidence: ConfidenceMedium,
		note:       "street number not verifiable, good geocoding data",
	},
	{
		name:       "weak",
		applies:    func(ReconciliationOutcome) bool { return true },
		confidence: ConfidenceLow,
		note:       "no number confirmation and incomplete geocoding data",
	},
}

// Classify maps a reconciliation outcome to a confidence tier and a
// human-readable quality note. The note names the geocode status on failure
// and lists missing fields when there are any.
func Classify(o ReconciliationOutcome) (Confidence, string) {
	rule := matchRule(o)

	notes := rule.note
	if o.GeocodeStatus != GeocodeSuccess {
		notes += " (" + string(o.GeocodeStatus) + ")"
	}
	if !o.AddressParsed && rule.name != "original_unparsed" {
		notes += "; could not parse original address"
	}
	if len(o.MissingFields) > 0 {
		notes += "; missing: " + strings.Join(o.MissingFields, ", ")
	}
	return rule.confidence, notes
}

func matchRule(o ReconciliationOutcome) classificationRule {
	for _, r := range classificationRules {
		if r.applies(o) {
			return r
		}
	}
	// Unreachable: the last rule always applies.
	return classificationRules[len(classificationRules)-1]
}

// Route maps a confidence tier to its outreach channel. LOW and any
// unrecognized value go to the agency.
func Route(c Confidence) Channel {
	switch c {
	case ConfidenceUltraHigh, ConfidenceHigh, ConfidenceMedium:
		return ChannelDirectMail
	default:
		return ChannelAgency
	}
}

// AddressCandidate is one distinct (owner, address) pair awaiting
// classification, with the parcels reached through it.
type AddressCandidate struct {
	OwnerID    string
	OwnerName  string
	RawAddress string
	ParcelIDs  []string
	Rows       []int
}

// ClassifyCandidate parses, reconciles, classifies and routes one candidate.
func ClassifyCandidate(c AddressCandidate, geocode GeocodeResult) ClassifiedRecord {
	parsed, _ := ParseAddress(c.RawAddress)
	if AddressKey(c.RawAddress) == "" {
		geocode = GeocodeResult{Status: GeocodeEmptyInput}
	}
	outcome := Reconcile(parsed, geocode)
	confidence, notes := Classify(outcome)

	return ClassifiedRecord{
		ID:              recordID(c.OwnerID, c.RawAddress),
		OwnerID:         c.OwnerID,
		OwnerName:       c.OwnerName,
		ParcelIDs:       append([]string(nil), c.ParcelIDs...),
		RawAddress:      c.RawAddress,
		OriginalAddress: parsed,
		Geocode:         geocode,
		NumberMatch:     outcome.NumberMatch,
		Completeness:    outcome.CompletenessScore,
		MissingFields:   outcome.MissingFields,
		Confidence:      confidence,
		QualityNotes:    notes,
		RoutingChannel:  Route(confidence),
	}
}

// recordID produces a deterministic ID from the owner and normalized address.
func recordID(ownerID, rawAddress string) string {
	hash := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(ownerID)) + "|" + AddressKey(rawAddress)))
	return "rec-" + hex.EncodeToString(hash[:8])
}
