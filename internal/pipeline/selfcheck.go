package pipeline

import (
	"context"
	"fmt"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
)

// selfCheckBatch is a three-owner batch with one record per confidence
// outcome: an exact match, a number mismatch and a failed lookup.
func selfCheckBatch() (Batch, map[string]domain.Confidence) {
	const (
		exact    = "AGRATE BRIANZA(MB) VIA MONTE GRAPPA n. 17"
		mismatch = "AGRATE BRIANZA(MB) VIA DANTE n. 3"
		failed   = "AGRATE BRIANZA(MB) VIA ROMA n. 9"
	)
	owner := func(row int, id, address string) domain.OwnershipRecord {
		return domain.OwnershipRecord{
			Row: row, Municipality: "AGRATE BRIANZA", Province: "MB", Sheet: "1", Parcel: "1",
			OwnerID: id, OwnerName: "SELF CHECK", Classification: "A/2",
			RawAddress: address, OwnershipType: "Privato",
		}
	}
	success := func(street, number string) domain.GeocodeResult {
		return domain.GeocodeResult{
			Status:           domain.GeocodeSuccess,
			FormattedAddress: street + " " + number + ", 20864 Agrate Brianza MB, Italia",
			StreetName:       street,
			StreetNumber:     number,
			PostalCode:       "20864",
			City:             "Agrate Brianza",
			Province:         "MB",
		}
	}

	b := Batch{
		Campaign: "self-check",
		Parcels:  []domain.Parcel{{Municipality: "AGRATE BRIANZA", Province: "MB", Sheet: "1", Parcel: "1"}},
		Owners: []domain.OwnershipRecord{
			owner(1, "AAAAAA00A00A000A", exact),
			owner(2, "BBBBBB00B00B000B", mismatch),
			owner(3, "CCCCCC00C00C000C", failed),
		},
		Geocodes: domain.GeocodeSet{
			domain.AddressKey(exact):    success("Via Monte Grappa", "17"),
			domain.AddressKey(mismatch): success("Via Dante", "5"),
			domain.AddressKey(failed):   {Status: domain.GeocodeNoResult},
		},
	}
	want := map[string]domain.Confidence{
		"AAAAAA00A00A000A": domain.ConfidenceUltraHigh,
		"BBBBBB00B00B000B": domain.ConfidenceMedium,
		"CCCCCC00C00C000C": domain.ConfidenceLow,
	}
	return b, want
}

// SelfCheck classifies a built-in batch and certifies the result without
// publishing it. A passing self-check marks the runner ready.
func (r *Runner) SelfCheck(ctx context.Context) error {
	b, want := selfCheckBatch()
	q := domain.Qualify(b.Parcels, b.Owners, b.Rules())
	records, excluded, err := r.classify(ctx, domain.ExpandAddresses(q.Rows), b.Geocodes, r.logger)
	if err != nil {
		return fmt.Errorf("self-check: %w", err)
	}

	report, err := domain.BuildReport(domain.ReportInput{
		Campaign: b.Campaign,
		Parcels:  b.Parcels,
		Owners:   b.Owners,
		Records:  records,
		Excluded: excluded,
		Rules:    b.Rules(),
	})
	if err != nil {
		return fmt.Errorf("self-check: %w", err)
	}
	if len(report.Records) != len(want) {
		return fmt.Errorf("self-check: got %d records, want %d", len(report.Records), len(want))
	}
	for _, rec := range report.Records {
		if rec.Confidence != want[rec.OwnerID] {
			return fmt.Errorf("self-check: owner %s classified %s, want %s", rec.OwnerID, rec.Confidence, want[rec.OwnerID])
		}
	}

	r.ready.Store(true)
	r.logger.Info("self-check passed", "records", len(report.Records))
	return nil
}
