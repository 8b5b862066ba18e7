package domain

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

// DefaultPrivateTags are the ownership-type tags that mark a private owner.
var DefaultPrivateTags = []string{"privato", "private", "persona fisica"}

var (
	// residentialRe matches Cat.A classifications: "Cat.A", "Cat. A/2", "A/3",
	// "A2", "A03". Cat.A/10 (offices) is rejected separately.
	residentialRe = regexp.MustCompile(`(?i)^(?:cat\.?\s*)?a\s*(?:/\s*)?(\d{0,2})$`)

	// personalCodeRe matches the 16-character codice fiscale of a natural
	// person. Companies carry an 11-digit partita IVA instead.
	personalCodeRe = regexp.MustCompile(`(?i)^[a-z]{6}\d{2}[a-z]\d{2}[a-z]\d{3}[a-z]$`)
)

// QualificationRules configures which ownership rows enter the contact funnel.
type QualificationRules struct {
	PrivateTags []string
}

// DefaultQualificationRules returns rules using DefaultPrivateTags.
func DefaultQualificationRules() QualificationRules {
	return QualificationRules{PrivateTags: DefaultPrivateTags}
}

// IsPrivate reports whether the row's owner is a private person. The tag wins
// when present; otherwise the shape of the fiscal code decides.
func (q QualificationRules) IsPrivate(r OwnershipRecord) bool {
	tag := strings.TrimSpace(r.OwnershipType)
	if tag != "" {
		for _, t := range q.PrivateTags {
			if strings.EqualFold(collapseSpaces(t), collapseSpaces(tag)) {
				return true
			}
		}
		return false
	}
	return personalCodeRe.MatchString(strings.TrimSpace(r.OwnerID))
}

// IsResidential reports whether a cadastral classification is Cat.A
// residential, excluding A/10 offices.
func IsResidential(classification string) bool {
	m := residentialRe.FindStringSubmatch(collapseSpaces(classification))
	if m == nil {
		return false
	}
	return strings.TrimLeft(m[1], "0") != "10"
}

// ValidateOwnershipRecord checks the fields every row needs to be traced to an
// owner and a parcel.
func ValidateOwnershipRecord(r OwnershipRecord) error {
	switch {
	case strings.TrimSpace(r.OwnerID) == "":
		return &InputShapeError{Row: r.Row, Reason: ReasonMissingFiscalCode}
	case strings.TrimSpace(r.Municipality) == "":
		return &InputShapeError{Row: r.Row, Reason: ReasonMissingMunicipality}
	case strings.TrimSpace(r.Sheet) == "":
		return &InputShapeError{Row: r.Row, Reason: ReasonMissingSheet}
	case strings.TrimSpace(r.Parcel) == "":
		return &InputShapeError{Row: r.Row, Reason: ReasonMissingParcel}
	}
	return nil
}

// parcelSet is a set of parcel IDs.
type parcelSet map[string]struct{}

func (s parcelSet) add(id string) { s[id] = struct{}{} }

func (s parcelSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

// Qualification is the outcome of applying QualificationRules to a campaign's
// parcels and ownership rows. The parcel sets are nested:
// Residential ⊆ Private ⊆ Owned ⊆ Input.
type Qualification struct {
	Input       []Parcel
	Owned       parcelSet
	Private     parcelSet
	Residential parcelSet

	// Rows are the valid rows of private owners on qualifying parcels.
	Rows     []OwnershipRecord
	Excluded []ExcludedRow
}

// QualifyingParcels returns the number of parcels in the last land stage.
func (q *Qualification) QualifyingParcels() int { return len(q.Residential) }

// Qualify applies the rules to parcels and ownership rows. Rows that fail
// ValidateOwnershipRecord, or that reference a parcel outside the input list,
// are excluded with a reason. Duplicate input parcels are collapsed.
func Qualify(parcels []Parcel, owners []OwnershipRecord, rules QualificationRules) *Qualification {
	q := &Qualification{
		Owned:       parcelSet{},
		Private:     parcelSet{},
		Residential: parcelSet{},
	}

	known := parcelSet{}
	for _, p := range parcels {
		id := p.ID()
		if known.has(id) {
			continue
		}
		known.add(id)
		q.Input = append(q.Input, p)
	}
	sort.Slice(q.Input, func(i, j int) bool { return q.Input[i].ID() < q.Input[j].ID() })

	valid := make([]OwnershipRecord, 0, len(owners))
	residentialRow := parcelSet{}
	for _, r := range owners {
		var shapeErr *InputShapeError
		if err := ValidateOwnershipRecord(r); errors.As(err, &shapeErr) {
			q.Excluded = append(q.Excluded, excludedFromError(r, shapeErr))
			continue
		}
		id := r.ParcelID()
		if !known.has(id) {
			q.Excluded = append(q.Excluded, excludedFromError(r, &InputShapeError{
				Row: r.Row, Reason: ReasonUnknownParcel, Detail: id,
			}))
			continue
		}
		valid = append(valid, r)
		q.Owned.add(id)
		if rules.IsPrivate(r) {
			q.Private.add(id)
		}
		if IsResidential(r.Classification) {
			residentialRow.add(id)
		}
	}
	for id := range q.Private {
		if residentialRow.has(id) {
			q.Residential.add(id)
		}
	}

	for _, r := range valid {
		if q.Residential.has(r.ParcelID()) && rules.IsPrivate(r) {
			q.Rows = append(q.Rows, r)
		}
	}
	return q
}

// Owners returns the distinct owner IDs among the qualifying rows, sorted.
func (q *Qualification) Owners() []string {
	seen := map[string]bool{}
	var ids []string
	for _, r := range q.Rows {
		id := normalizeOwnerID(r.OwnerID)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ExpandAddresses turns qualifying rows into one candidate per distinct
// (owner, normalized address) pair. Candidates are sorted by owner then
// address; parcel IDs are sorted and unique.
func ExpandAddresses(rows []OwnershipRecord) []AddressCandidate {
	type key struct{ owner, address string }
	index := map[key]int{}
	var out []AddressCandidate
	parcels := []parcelSet{}

	for _, r := range rows {
		k := key{normalizeOwnerID(r.OwnerID), AddressKey(r.RawAddress)}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, AddressCandidate{
				OwnerID:    k.owner,
				OwnerName:  collapseSpaces(r.OwnerName),
				RawAddress: collapseSpaces(r.RawAddress),
			})
			parcels = append(parcels, parcelSet{})
		}
		parcels[i].add(r.ParcelID())
		out[i].Rows = append(out[i].Rows, r.Row)
	}

	for i := range out {
		out[i].ParcelIDs = parcels[i].sorted()
		sort.Ints(out[i].Rows)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return AddressKey(out[i].RawAddress) < AddressKey(out[j].RawAddress)
	})
	return out
}

func (s parcelSet) sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizeOwnerID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
