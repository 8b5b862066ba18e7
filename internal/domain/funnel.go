package domain

import "math"

// Land acquisition stage names, in order.
const (
	StageInputParcels       = "Input Parcels"
	StageOwnedParcels       = "Parcels with Identified Owners"
	StagePrivateParcels     = "Private-Owner Parcels"
	StageResidentialParcels = "Parcels w/ Residential Buildings"
)

// Contact processing stage names, in order.
const (
	StageOwnerDiscovery   = "Owner Discovery"
	StageAddressExpansion = "Address Expansion"
	StageDirectMailReady  = "Direct Mail Ready"
	StageAgencyRequired   = "Agency Investigation Required"
)

// BuildFunnels computes the land acquisition funnel followed by the contact
// processing funnel. Qualification uses the same rules the pipeline used to
// select rows, so the counts line up with the classified records.
func BuildFunnels(parcels []Parcel, owners []OwnershipRecord, records []ClassifiedRecord, rules QualificationRules) []FunnelStage {
	q := Qualify(parcels, owners, rules)
	return append(LandFunnel(q), ContactFunnel(q, records)...)
}

// LandFunnel builds the four land acquisition stages from a qualification.
func LandFunnel(q *Qualification) []FunnelStage {
	all := parcelSet{}
	for _, p := range q.Input {
		all.add(p.ID())
	}
	sets := []struct {
		name string
		rule string
		ids  parcelSet
	}{
		{StageInputParcels, "distinct input parcels", all},
		{StageOwnedParcels, "parcels with at least one valid ownership row", q.Owned},
		{StagePrivateParcels, "parcels with at least one private owner", q.Private},
		{StageResidentialParcels, "private-owner parcels with a Cat.A classification", q.Residential},
	}

	stages := make([]FunnelStage, len(sets))
	for i, s := range sets {
		stages[i] = FunnelStage{
			FunnelType: FunnelLand,
			StageIndex: i,
			StageName:  s.name,
			Count:      len(s.ids),
			Hectares:   sumHectares(q.Input, s.ids),
			Rule:       s.rule,
		}
	}
	stages[0].Multiplier = ratio(stages[0].Count, stages[0].Count)
	fillRates(stages, func(i int) int { return i - 1 })
	return stages
}

// ContactFunnel builds the four contact processing stages. Owner Discovery
// is relative to the qualifying parcels; Direct Mail Ready and Agency
// Investigation Required are both splits of Address Expansion.
func ContactFunnel(q *Qualification, records []ClassifiedRecord) []FunnelStage {
	direct, agency := countChannels(records)
	owners := len(q.Owners())

	stages := []FunnelStage{
		{StageName: StageOwnerDiscovery, Count: owners, Rule: "distinct private owners of qualifying parcels",
			Multiplier: ratio(owners, q.QualifyingParcels())},
		{StageName: StageAddressExpansion, Count: len(records), Rule: "one record per owner and distinct address"},
		{StageName: StageDirectMailReady, Count: direct, Rule: "records routed to DIRECT_MAIL"},
		{StageName: StageAgencyRequired, Count: agency, Rule: "records routed to AGENCY"},
	}
	for i := range stages {
		stages[i].FunnelType = FunnelContact
		stages[i].StageIndex = i
	}
	fillRates(stages, func(i int) int {
		if i >= 2 {
			return 1
		}
		return i - 1
	})
	return stages
}

// fillRates sets multipliers relative to each stage's parent and retention
// relative to stage 0. The stage 0 multiplier is left to the caller.
func fillRates(stages []FunnelStage, parent func(i int) int) {
	base := stages[0].Count
	for i := range stages {
		if i > 0 {
			stages[i].Multiplier = ratio(stages[i].Count, stages[parent(i)].Count)
		}
		stages[i].RetentionRate = ratio(stages[i].Count, base)
	}
}

func countChannels(records []ClassifiedRecord) (direct, agency int) {
	for _, r := range records {
		if r.RoutingChannel == ChannelDirectMail {
			direct++
		} else {
			agency++
		}
	}
	return direct, agency
}

// ratio divides two counts, returning 0 when the denominator is 0.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return roundTo(float64(num)/float64(den), 4)
}

// sumHectares adds the known areas of the parcels in ids, walking parcels in
// ID order so the float sum is reproducible. It returns nil when none of the
// parcels has an area.
func sumHectares(parcels []Parcel, ids parcelSet) *float64 {
	var total float64
	known := false
	for _, p := range parcels {
		if p.Hectares == nil || !ids.has(p.ID()) {
			continue
		}
		total += *p.Hectares
		known = true
	}
	if !known {
		return nil
	}
	total = roundTo(total, 4)
	return &total
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
