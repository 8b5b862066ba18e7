package domain

import (
	"fmt"
	"sort"
	"time"
)

// Report bundles every artifact of one campaign run. RunID and GeneratedAt
// are metadata; all other fields are a pure function of the inputs.
type Report struct {
	RunID         string             `json:"run_id"`
	Campaign      string             `json:"campaign"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Records       []ClassifiedRecord `json:"records"`
	LandFunnel    []FunnelStage      `json:"land_funnel"`
	ContactFunnel []FunnelStage      `json:"contact_funnel"`
	Quality       []QualityRow       `json:"quality_distribution"`
	MailingList   []MailingListEntry `json:"mailing_list"`
	Excluded      []ExcludedRow      `json:"excluded"`
	Summary       Summary            `json:"summary"`
}

// Summary holds headline counts for a report.
type Summary struct {
	InputParcels      int `json:"input_parcels"`
	QualifyingParcels int `json:"qualifying_parcels"`
	Owners            int `json:"owners"`
	Records           int `json:"records"`
	DirectMail        int `json:"direct_mail"`
	Agency            int `json:"agency"`
	Excluded          int `json:"excluded"`
	MailingRows       int `json:"mailing_rows"`
	MailingOwners     int `json:"mailing_owners"`
}

// ReportInput is everything BuildReport needs. Excluded carries rows dropped
// after qualification (for example, addresses missing from the geocode set);
// rows rejected by qualification itself are added by BuildReport.
type ReportInput struct {
	RunID    string
	Campaign string
	Parcels  []Parcel
	Owners   []OwnershipRecord
	Records  []ClassifiedRecord
	Excluded []ExcludedRow
	Rules    QualificationRules
}

// BuildReport assembles funnels, quality distribution and mailing list from
// the classified records and certifies that they agree. It returns a
// *ConsistencyError and no report when any check fails.
func BuildReport(in ReportInput) (*Report, error) {
	q := Qualify(in.Parcels, in.Owners, in.Rules)

	records := make([]ClassifiedRecord, len(in.Records))
	copy(records, in.Records)
	SortRecords(records)

	excluded := make([]ExcludedRow, 0, len(q.Excluded)+len(in.Excluded))
	excluded = append(excluded, q.Excluded...)
	excluded = append(excluded, in.Excluded...)
	sort.SliceStable(excluded, func(i, j int) bool {
		if excluded[i].Row != excluded[j].Row {
			return excluded[i].Row < excluded[j].Row
		}
		return excluded[i].Reason < excluded[j].Reason
	})

	r := &Report{
		RunID:         in.RunID,
		Campaign:      in.Campaign,
		GeneratedAt:   clock.Now().UTC(),
		Records:       records,
		LandFunnel:    LandFunnel(q),
		ContactFunnel: ContactFunnel(q, records),
		Quality:       BuildQualityDistribution(records),
		MailingList:   BuildMailingList(records),
		Excluded:      excluded,
	}

	direct, agency := countChannels(records)
	r.Summary = Summary{
		InputParcels:      len(q.Input),
		QualifyingParcels: q.QualifyingParcels(),
		Owners:            len(q.Owners()),
		Records:           len(records),
		DirectMail:        direct,
		Agency:            agency,
		Excluded:          len(excluded),
		MailingRows:       len(r.MailingList),
		MailingOwners:     UniqueOwners(r.MailingList),
	}

	if err := CertifyConsistency(r); err != nil {
		return nil, err
	}
	return r, nil
}

// SortRecords orders records by owner ID, normalized address, then ID.
func SortRecords(records []ClassifiedRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		if ka, kb := AddressKey(a.RawAddress), AddressKey(b.RawAddress); ka != kb {
			return ka < kb
		}
		return a.ID < b.ID
	})
}

// Consistency check names reported in violations.
const (
	CheckChannelSplit      = "direct_mail_plus_agency_equals_expansion"
	CheckExpansionRecords  = "expansion_equals_records"
	CheckQualityTotal      = "quality_total_equals_expansion"
	CheckQualityTier       = "quality_tier_matches_records"
	CheckQualityDirectMail = "quality_direct_mail_equals_ready"
	CheckMailingRows       = "mailing_rows_equal_ready"
	CheckRouting           = "channel_matches_confidence"
	CheckLandMonotone      = "land_funnel_non_increasing"
	CheckMissingStage      = "stage_present"
)

// CertifyConsistency cross-checks the artifacts of a report. It returns a
// *ConsistencyError listing every failed check, or nil.
func CertifyConsistency(r *Report) error {
	var v []Violation

	stage := func(name string) int {
		for _, s := range r.ContactFunnel {
			if s.StageName == name {
				return s.Count
			}
		}
		v = append(v, Violation{Check: CheckMissingStage, Expected: 1, Actual: 0, Detail: name})
		return 0
	}
	expansion := stage(StageAddressExpansion)
	ready := stage(StageDirectMailReady)
	agency := stage(StageAgencyRequired)

	if ready+agency != expansion {
		v = append(v, Violation{Check: CheckChannelSplit, Expected: expansion, Actual: ready + agency})
	}
	if len(r.Records) != expansion {
		v = append(v, Violation{Check: CheckExpansionRecords, Expected: expansion, Actual: len(r.Records)})
	}

	tierCounts := map[Confidence]int{}
	for _, rec := range r.Records {
		tierCounts[rec.Confidence]++
	}
	qualityTotal, qualityDirect := 0, 0
	for _, row := range r.Quality {
		qualityTotal += row.Count
		if row.RoutingChannel == ChannelDirectMail {
			qualityDirect += row.Count
		}
		if row.Count != tierCounts[row.Confidence] {
			v = append(v, Violation{
				Check: CheckQualityTier, Expected: tierCounts[row.Confidence], Actual: row.Count,
				Detail: string(row.Confidence),
			})
		}
	}
	if qualityTotal != expansion {
		v = append(v, Violation{Check: CheckQualityTotal, Expected: expansion, Actual: qualityTotal})
	}
	if qualityDirect != ready {
		v = append(v, Violation{Check: CheckQualityDirectMail, Expected: ready, Actual: qualityDirect})
	}
	if len(r.MailingList) != ready {
		v = append(v, Violation{Check: CheckMailingRows, Expected: ready, Actual: len(r.MailingList)})
	}

	misrouted := 0
	var first string
	for _, rec := range r.Records {
		if rec.RoutingChannel != Route(rec.Confidence) {
			if misrouted == 0 {
				first = rec.ID
			}
			misrouted++
		}
	}
	if misrouted > 0 {
		v = append(v, Violation{Check: CheckRouting, Expected: 0, Actual: misrouted, Detail: "first: " + first})
	}

	for i := 1; i < len(r.LandFunnel); i++ {
		prev, cur := r.LandFunnel[i-1], r.LandFunnel[i]
		if cur.Count > prev.Count {
			v = append(v, Violation{
				Check: CheckLandMonotone, Expected: prev.Count, Actual: cur.Count,
				Detail: fmt.Sprintf("%s > %s", cur.StageName, prev.StageName),
			})
		}
	}

	if len(v) > 0 {
		return &ConsistencyError{Violations: v}
	}
	return nil
}
