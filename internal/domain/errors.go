package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParseFailure is returned when an address matches none of the known layouts.
	ErrParseFailure = errors.New("address parse failure")

	// ErrGeocodeFailure marks a geocode result whose status is not SUCCESS.
	ErrGeocodeFailure = errors.New("geocode failure")

	// ErrConsistencyViolation is the sentinel wrapped by *ConsistencyError.
	ErrConsistencyViolation = errors.New("consistency violation")

	// ErrInputShape is the sentinel wrapped by *InputShapeError.
	ErrInputShape = errors.New("input shape error")
)

// Exclusion reason codes reported for rows that cannot enter the contact funnel.
const (
	ReasonMissingFiscalCode   = "missing_fiscal_code"
	ReasonMissingMunicipality = "missing_municipality"
	ReasonMissingSheet        = "missing_sheet"
	ReasonMissingParcel       = "missing_parcel"
	ReasonUnknownParcel       = "unknown_parcel"
	ReasonMissingGeocode      = "missing_geocode"
)

// InputShapeError describes an ownership row that is structurally unusable.
type InputShapeError struct {
	Row    int
	Reason string
	Detail string
}

func (e *InputShapeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Reason, e.Detail)
}

func (e *InputShapeError) Unwrap() error { return ErrInputShape }

// Violation is a single failed consistency check.
type Violation struct {
	Check    string `json:"check"`
	Expected int    `json:"expected"`
	Actual   int    `json:"actual"`
	Detail   string `json:"detail,omitempty"`
}

func (v Violation) String() string {
	s := fmt.Sprintf("%s: expected %d, got %d", v.Check, v.Expected, v.Actual)
	if v.Detail != "" {
		s += " (" + v.Detail + ")"
	}
	return s
}

// ConsistencyError lists every cross-artifact check that failed for a report.
type ConsistencyError struct {
	Violations []Violation
}

func (e *ConsistencyError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "consistency violation: " + strings.Join(parts, "; ")
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistencyViolation }
