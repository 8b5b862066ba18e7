package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOwnerRossi   = "RSSMRA80A01F205X"
	testOwnerVerdi   = "VRDGPP75B02F205Y"
	testCompanyVAT   = "01234567890"
	testAddressDante = "AGRATE BRIANZA(MI) VIA DANTE n. 3"
	testAddressRoma  = "AGRATE BRIANZA(MI) VIA ROMA n. 9"
)

func hectares(v float64) *float64 { return &v }

func testParcels() []Parcel {
	return []Parcel{
		{Municipality: "AGRATE BRIANZA", Province: "MB", Sheet: "12", Parcel: "345", Hectares: hectares(1.5)},
		{Municipality: "Agrate Brianza", Province: "MB", Sheet: "012", Parcel: "346", Hectares: hectares(2.25)},
		{Municipality: "AGRATE BRIANZA", Province: "MB", Sheet: "13", Parcel: "1"},
		{Municipality: "AGRATE BRIANZA", Province: "MB", Sheet: "12", Parcel: "345", Hectares: hectares(1.5)},
	}
}

func testOwners() []OwnershipRecord {
	return []OwnershipRecord{
		{Row: 1, Municipality: "AGRATE BRIANZA", Sheet: "12", Parcel: "345", OwnerID: testOwnerRossi, OwnerName: "ROSSI MARIO",
			Classification: "A/2", RawAddress: testAddressAgrate, OwnershipType: "Privato"},
		{Row: 2, Municipality: "AGRATE BRIANZA", Sheet: "12", Parcel: "346", OwnerID: testOwnerRossi, OwnerName: "ROSSI MARIO",
			Classification: "Cat.A/3", RawAddress: testAddressDante, OwnershipType: "privato"},
		{Row: 3, Municipality: "AGRATE BRIANZA", Sheet: "12", Parcel: "346", OwnerID: testOwnerVerdi, OwnerName: "VERDI GIUSEPPE",
			Classification: "A/3", RawAddress: testAddressRoma},
		{Row: 4, Municipality: "AGRATE BRIANZA", Sheet: "12", Parcel: "346", OwnerID: testCompanyVAT, OwnerName: "IMMOBILIARE SRL",
			Classification: "A/3", RawAddress: testAddressRoma, OwnershipType: "Societa"},
		{Row: 5, Municipality: "AGRATE BRIANZA", Sheet: "12", Parcel: "345", OwnerName: "SENZA CODICE",
			Classification: "A/2", RawAddress: testAddressAgrate, OwnershipType: "Privato"},
		{Row: 6, Municipality: "MONZA", Sheet: "1", Parcel: "1", OwnerID: testOwnerVerdi, OwnerName: "VERDI GIUSEPPE",
			Classification: "A/2", RawAddress: testAddressRoma, OwnershipType: "Privato"},
	}
}

func testGeocodes() GeocodeSet {
	dante := GeocodeResult{
		Status:           GeocodeSuccess,
		FormattedAddress: "Via Dante 3, 20864 Agrate Brianza MB, Italia",
		StreetName:       "Via Dante",
		StreetNumber:     "3",
		PostalCode:       "20864",
		City:             "Agrate Brianza",
		Province:         "MB",
	}
	return GeocodeSet{
		AddressKey(testAddressAgrate): geocodeAgrate("17"),
		AddressKey(testAddressDante):  dante,
		AddressKey(testAddressRoma):   {Status: GeocodeNoResult},
	}
}

// classifyAll mirrors the pipeline: qualify, expand, classify.
func classifyAll(t *testing.T, parcels []Parcel, owners []OwnershipRecord, geocodes GeocodeSet) []ClassifiedRecord {
	t.Helper()
	q := Qualify(parcels, owners, DefaultQualificationRules())
	var records []ClassifiedRecord
	for _, c := range ExpandAddresses(q.Rows) {
		g, ok := geocodes.Lookup(c.RawAddress)
		require.True(t, ok, c.RawAddress)
		records = append(records, ClassifyCandidate(c, g))
	}
	return records
}

func testReport(t *testing.T) *Report {
	t.Helper()
	records := classifyAll(t, testParcels(), testOwners(), testGeocodes())
	r, err := BuildReport(ReportInput{
		RunID:    "run-1",
		Campaign: "agrate",
		Parcels:  testParcels(),
		Owners:   testOwners(),
		Records:  records,
		Rules:    DefaultQualificationRules(),
	})
	require.NoError(t, err)
	return r
}

func TestQualify(t *testing.T) {
	q := Qualify(testParcels(), testOwners(), DefaultQualificationRules())

	assert.Len(t, q.Input, 3, "duplicate parcel collapsed")
	assert.Len(t, q.Owned, 2)
	assert.Len(t, q.Private, 2)
	assert.Len(t, q.Residential, 2)
	assert.Len(t, q.Rows, 3)
	assert.Equal(t, []string{testOwnerRossi, testOwnerVerdi}, q.Owners())

	require.Len(t, q.Excluded, 2)
	assert.Equal(t, 5, q.Excluded[0].Row)
	assert.Equal(t, ReasonMissingFiscalCode, q.Excluded[0].Reason)
	assert.Equal(t, 6, q.Excluded[1].Row)
	assert.Equal(t, ReasonUnknownParcel, q.Excluded[1].Reason)
	assert.Equal(t, "MONZA|1|1", q.Excluded[1].Detail)
}

func TestIsPrivate(t *testing.T) {
	rules := QualificationRules{PrivateTags: []string{"Persona Fisica"}}
	assert.True(t, rules.IsPrivate(OwnershipRecord{OwnershipType: "persona  fisica"}))
	assert.False(t, rules.IsPrivate(OwnershipRecord{OwnershipType: "Privato", OwnerID: testOwnerRossi}))
	assert.True(t, rules.IsPrivate(OwnershipRecord{OwnerID: testOwnerRossi}))
	assert.False(t, rules.IsPrivate(OwnershipRecord{OwnerID: testCompanyVAT}))
}

func TestDefaultQualificationRules_PrivateTags(t *testing.T) {
	rules := DefaultQualificationRules()
	for _, tag := range []string{"Privato", "PRIVATE", "Persona Fisica"} {
		assert.True(t, rules.IsPrivate(OwnershipRecord{OwnershipType: tag, OwnerID: testCompanyVAT}), tag)
	}
	for _, tag := range []string{"Proprieta'", "Nuda proprieta'", "Societa'"} {
		assert.False(t, rules.IsPrivate(OwnershipRecord{OwnershipType: tag, OwnerID: testOwnerRossi}), tag)
	}
}

func TestIsResidential(t *testing.T) {
	for _, c := range []string{"Cat.A", "Cat. A/2", "A/3", "A2", "A03", "a/7"} {
		assert.True(t, IsResidential(c), c)
	}
	for _, c := range []string{"", "C/6", "D/1", "A/10", "Cat.A/10", "F/2"} {
		assert.False(t, IsResidential(c), c)
	}
}

func TestValidateOwnershipRecord(t *testing.T) {
	base := testOwners()[0]
	require.NoError(t, ValidateOwnershipRecord(base))

	noSheet := base
	noSheet.Sheet = " "
	err := ValidateOwnershipRecord(noSheet)
	assert.ErrorIs(t, err, ErrInputShape)
	var shapeErr *InputShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, ReasonMissingSheet, shapeErr.Reason)
	assert.Equal(t, "row 1: missing_sheet", shapeErr.Error())
}

func TestExpandAddresses(t *testing.T) {
	rows := []OwnershipRecord{
		{Row: 3, Municipality: "LESMO", Sheet: "2", Parcel: "20", OwnerID: "b", RawAddress: "LESMO(MB) VIA ROMA n. 1"},
		{Row: 1, Municipality: "LESMO", Sheet: "2", Parcel: "10", OwnerID: "A", RawAddress: "LESMO(MB) VIA ROMA n. 1"},
		{Row: 2, Municipality: "LESMO", Sheet: "2", Parcel: "11", OwnerID: "a", RawAddress: " lesmo(MB)  via roma n. 1"},
		{Row: 4, Municipality: "LESMO", Sheet: "2", Parcel: "10", OwnerID: "A", RawAddress: "LESMO(MB) VIA ROMA n. 1"},
	}
	got := ExpandAddresses(rows)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].OwnerID)
	assert.Equal(t, []string{"LESMO|2|10", "LESMO|2|11"}, got[0].ParcelIDs)
	assert.Equal(t, []int{1, 2, 4}, got[0].Rows)
	assert.Equal(t, "B", got[1].OwnerID)
}

func TestBuildFunnels(t *testing.T) {
	records := classifyAll(t, testParcels(), testOwners(), testGeocodes())
	stages := BuildFunnels(testParcels(), testOwners(), records, DefaultQualificationRules())
	require.Len(t, stages, 8)

	land := stages[:4]
	assert.Equal(t, []int{3, 2, 2, 2}, []int{land[0].Count, land[1].Count, land[2].Count, land[3].Count})
	require.NotNil(t, land[0].Hectares)
	assert.Equal(t, 3.75, *land[0].Hectares)
	assert.Equal(t, 3.75, *land[3].Hectares)
	assert.Equal(t, 1.0, land[0].Multiplier)
	assert.Equal(t, 0.6667, land[1].Multiplier)
	assert.Equal(t, 0.6667, land[3].RetentionRate)

	contact := stages[4:]
	for i, s := range contact {
		assert.Equal(t, FunnelContact, s.FunnelType)
		assert.Equal(t, i, s.StageIndex)
	}
	assert.Equal(t, StageOwnerDiscovery, contact[0].StageName)
	assert.Equal(t, 2, contact[0].Count)
	assert.Equal(t, 1.0, contact[0].Multiplier, "owners per qualifying parcel")
	assert.Equal(t, 3, contact[1].Count)
	assert.Equal(t, 1.5, contact[1].Multiplier, "records per owner")
	assert.Equal(t, 2, contact[2].Count)
	assert.Equal(t, 1, contact[3].Count)
	assert.Equal(t, contact[1].Count, contact[2].Count+contact[3].Count)
	assert.Equal(t, 0.6667, contact[2].Multiplier)
	assert.Equal(t, 0.3333, contact[3].Multiplier)
	assert.Equal(t, []float64{1, 1.5, 1, 0.5},
		[]float64{contact[0].RetentionRate, contact[1].RetentionRate, contact[2].RetentionRate, contact[3].RetentionRate})
}

func TestBuildFunnels_Empty(t *testing.T) {
	stages := BuildFunnels(nil, nil, nil, DefaultQualificationRules())
	require.Len(t, stages, 8)
	for _, s := range stages {
		assert.Zero(t, s.Count)
		assert.Zero(t, s.Multiplier)
		assert.Zero(t, s.RetentionRate)
		assert.Nil(t, s.Hectares)
	}
}

func TestBuildQualityDistribution(t *testing.T) {
	rows := BuildQualityDistribution(classifyAll(t, testParcels(), testOwners(), testGeocodes()))
	require.Len(t, rows, 4)
	assert.Equal(t, QualityRow{Confidence: ConfidenceUltraHigh, Count: 2, Percentage: 66.7, RoutingChannel: ChannelDirectMail}, rows[0])
	assert.Equal(t, QualityRow{Confidence: ConfidenceHigh, Count: 0, Percentage: 0, RoutingChannel: ChannelDirectMail}, rows[1])
	assert.Equal(t, QualityRow{Confidence: ConfidenceMedium, Count: 0, Percentage: 0, RoutingChannel: ChannelDirectMail}, rows[2])
	assert.Equal(t, QualityRow{Confidence: ConfidenceLow, Count: 1, Percentage: 33.3, RoutingChannel: ChannelAgency}, rows[3])

	empty := BuildQualityDistribution(nil)
	for _, row := range empty {
		assert.Zero(t, row.Percentage)
	}
}

func TestBuildMailingList_OwnerWithTwoAddresses(t *testing.T) {
	entries := BuildMailingList(classifyAll(t, testParcels(), testOwners(), testGeocodes()))
	require.Len(t, entries, 2)

	for _, e := range entries {
		assert.Equal(t, testOwnerRossi, e.OwnerID)
		assert.Equal(t, ConfidenceUltraHigh, e.Confidence)
		assert.Equal(t, []string{"AGRATE BRIANZA|12|345", "AGRATE BRIANZA|12|346"}, e.OwnerParcelIDs)
	}
	assert.Equal(t, []string{"AGRATE BRIANZA|12|346"}, entries[0].ParcelIDs)
	assert.Equal(t, "Via Dante 3, 20864 Agrate Brianza (MB)", entries[0].Address.Line())
	assert.Equal(t, []string{"AGRATE BRIANZA|12|345"}, entries[1].ParcelIDs)
	assert.Equal(t, "Via Monte Grappa 17, 20864 Agrate Brianza (MB)", entries[1].Address.Line())
	assert.Equal(t, 1, UniqueOwners(entries))
}

func TestBuildMailingList_MismatchKeepsRegisteredNumber(t *testing.T) {
	g := geocodeAgrate("19")
	rec := ClassifyCandidate(AddressCandidate{OwnerID: testOwnerRossi, RawAddress: testAddressAgrate}, g)
	require.Equal(t, ChannelDirectMail, rec.RoutingChannel)

	entries := BuildMailingList([]ClassifiedRecord{rec})
	require.Len(t, entries, 1)
	assert.Equal(t, "17", entries[0].Address.Number)
	assert.Equal(t, "20864", entries[0].Address.PostalCode)
}

func TestBuildReport(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { SetClock(nil) })

	r := testReport(t)
	assert.True(t, fixed.Equal(r.GeneratedAt))
	assert.Equal(t, "run-1", r.RunID)
	assert.Len(t, r.Records, 3)
	assert.Len(t, r.LandFunnel, 4)
	assert.Len(t, r.ContactFunnel, 4)
	assert.Len(t, r.MailingList, 2)
	require.Len(t, r.Excluded, 2)
	assert.Equal(t, Summary{
		InputParcels:      3,
		QualifyingParcels: 2,
		Owners:            2,
		Records:           3,
		DirectMail:        2,
		Agency:            1,
		Excluded:          2,
		MailingRows:       2,
		MailingOwners:     1,
	}, r.Summary)

	for _, rec := range r.Records {
		assert.Equal(t, rec.Confidence == ConfidenceLow, rec.RoutingChannel == ChannelAgency, rec.ID)
	}
}

func TestBuildReport_Idempotent(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, testReport(t), testReport(t))
}

func TestBuildReport_ExcludedFromCaller(t *testing.T) {
	records := classifyAll(t, testParcels(), testOwners(), testGeocodes())
	r, err := BuildReport(ReportInput{
		Parcels:  testParcels(),
		Owners:   testOwners(),
		Records:  records,
		Excluded: []ExcludedRow{{Row: 0, Reason: ReasonMissingGeocode}},
		Rules:    DefaultQualificationRules(),
	})
	require.NoError(t, err)
	require.Len(t, r.Excluded, 3)
	assert.Equal(t, ReasonMissingGeocode, r.Excluded[0].Reason)
}

func TestBuildReport_RefusesMisroutedRecord(t *testing.T) {
	records := classifyAll(t, testParcels(), testOwners(), testGeocodes())
	for i := range records {
		if records[i].Confidence == ConfidenceLow {
			records[i].RoutingChannel = ChannelDirectMail
		}
	}
	r, err := BuildReport(ReportInput{Parcels: testParcels(), Owners: testOwners(), Records: records, Rules: DefaultQualificationRules()})
	assert.Nil(t, r)
	assert.ErrorIs(t, err, ErrConsistencyViolation)

	var ce *ConsistencyError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, checks(ce), CheckRouting)
	assert.Contains(t, checks(ce), CheckQualityDirectMail)
}

func TestCertifyConsistency(t *testing.T) {
	t.Run("clean report", func(t *testing.T) {
		assert.NoError(t, CertifyConsistency(testReport(t)))
	})

	t.Run("dropped mailing row", func(t *testing.T) {
		r := testReport(t)
		r.MailingList = r.MailingList[:1]
		var ce *ConsistencyError
		require.True(t, errors.As(CertifyConsistency(r), &ce))
		assert.Equal(t, []string{CheckMailingRows}, checks(ce))
		assert.Equal(t, 2, ce.Violations[0].Expected)
		assert.Equal(t, 1, ce.Violations[0].Actual)
	})

	t.Run("quality tier drift", func(t *testing.T) {
		r := testReport(t)
		r.Quality[1].Count++
		var ce *ConsistencyError
		require.True(t, errors.As(CertifyConsistency(r), &ce))
		assert.ElementsMatch(t, []string{CheckQualityTier, CheckQualityTotal, CheckQualityDirectMail}, checks(ce))
	})

	t.Run("channel split", func(t *testing.T) {
		r := testReport(t)
		r.ContactFunnel[3].Count = 0
		var ce *ConsistencyError
		require.True(t, errors.As(CertifyConsistency(r), &ce))
		assert.Equal(t, []string{CheckChannelSplit}, checks(ce))
		assert.Contains(t, ce.Error(), "direct_mail_plus_agency_equals_expansion: expected 3, got 2")
	})

	t.Run("land funnel grows", func(t *testing.T) {
		r := testReport(t)
		r.LandFunnel[2].Count = 10
		var ce *ConsistencyError
		require.True(t, errors.As(CertifyConsistency(r), &ce))
		assert.Equal(t, []string{CheckLandMonotone}, checks(ce))
		assert.Equal(t, 10, ce.Violations[0].Actual)
	})

	t.Run("missing stage", func(t *testing.T) {
		r := testReport(t)
		r.ContactFunnel = r.ContactFunnel[:2]
		var ce *ConsistencyError
		require.True(t, errors.As(CertifyConsistency(r), &ce))
		assert.Contains(t, checks(ce), CheckMissingStage)
	})
}

func checks(ce *ConsistencyError) []string {
	out := make([]string, len(ce.Violations))
	for i, v := range ce.Violations {
		out[i] = v.Check
	}
	return out
}
