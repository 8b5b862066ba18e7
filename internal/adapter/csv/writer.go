package csv

import (
	stdcsv "encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
)

// Output file names written by WriteReport.
const (
	RecordsFile  = "classified_records.csv"
	FunnelFile   = "funnel.csv"
	QualityFile  = "address_quality_distribution.csv"
	MailingFile  = "mailing_list.csv"
	ExcludedFile = "excluded.csv"
	ReportFile   = "report.json"
)

// WriteReport writes every report table plus report.json into dir,
// creating it if needed.
func WriteReport(dir string, r *domain.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tables := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{RecordsFile, recordsHeader, recordRows(r.Records)},
		{FunnelFile, funnelHeader, funnelRows(r.LandFunnel, r.ContactFunnel)},
		{QualityFile, qualityHeader, qualityRows(r.Quality)},
		{MailingFile, mailingHeader, mailingRows(r.MailingList)},
		{ExcludedFile, excludedHeader, excludedRows(r.Excluded)},
	}
	for _, t := range tables {
		if err := writeCSV(filepath.Join(dir, t.name), t.header, t.rows); err != nil {
			return err
		}
	}
	return writeJSON(filepath.Join(dir, ReportFile), r)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := stdcsv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var recordsHeader = []string{
	"id", "owner_id", "owner_name", "parcel_ids", "raw_address",
	"original_street", "original_number", "original_municipality", "original_province",
	"geocode_status", "geocoded_address", "geocoded_street", "geocoded_number",
	"postal_code", "city", "province",
	"number_match", "completeness_score", "missing_fields",
	"confidence", "routing_channel", "quality_notes",
}

func recordRows(records []domain.ClassifiedRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		var orig domain.ParsedAddress
		if rec.OriginalAddress != nil {
			orig = *rec.OriginalAddress
		}
		g := rec.Geocode
		rows = append(rows, []string{
			rec.ID, rec.OwnerID, rec.OwnerName, strings.Join(rec.ParcelIDs, ";"), rec.RawAddress,
			orig.StreetName, orig.StreetNumber, orig.Municipality, orig.Province,
			string(g.Status), g.FormattedAddress, g.StreetName, g.StreetNumber,
			g.PostalCode, g.City, g.Province,
			rec.NumberMatch.String(), formatFloat(rec.Completeness), strings.Join(rec.MissingFields, ";"),
			string(rec.Confidence), string(rec.RoutingChannel), rec.QualityNotes,
		})
	}
	return rows
}

var funnelHeader = []string{
	"funnel_type", "stage_index", "stage_name", "count", "hectares",
	"multiplier", "retention_rate", "rule",
}

func funnelRows(funnels ...[]domain.FunnelStage) [][]string {
	var rows [][]string
	for _, stages := range funnels {
		for _, s := range stages {
			hectares := ""
			if s.Hectares != nil {
				hectares = formatFloat(*s.Hectares)
			}
			rows = append(rows, []string{
				string(s.FunnelType), strconv.Itoa(s.StageIndex), s.StageName, strconv.Itoa(s.Count), hectares,
				formatFloat(s.Multiplier), formatFloat(s.RetentionRate), s.Rule,
			})
		}
	}
	return rows
}

var qualityHeader = []string{"confidence", "count", "percentage", "routing_channel"}

func qualityRows(quality []domain.QualityRow) [][]string {
	rows := make([][]string, 0, len(quality))
	for _, q := range quality {
		rows = append(rows, []string{
			string(q.Confidence), strconv.Itoa(q.Count), formatFloat(q.Percentage), string(q.RoutingChannel),
		})
	}
	return rows
}

var mailingHeader = []string{
	"record_id", "owner_id", "full_name", "address_line",
	"street", "number", "postal_code", "city", "province",
	"parcel_ids", "owner_parcel_ids", "confidence",
}

func mailingRows(entries []domain.MailingListEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		a := e.Address
		rows = append(rows, []string{
			e.RecordID, e.OwnerID, e.FullName, a.Line(),
			a.Street, a.Number, a.PostalCode, a.City, a.Province,
			strings.Join(e.ParcelIDs, ";"), strings.Join(e.OwnerParcelIDs, ";"), string(e.Confidence),
		})
	}
	return rows
}

var excludedHeader = []string{"row", "owner_id", "parcel_id", "raw_address", "reason", "detail"}

func excludedRows(excluded []domain.ExcludedRow) [][]string {
	rows := make([][]string, 0, len(excluded))
	for _, ex := range excluded {
		rows = append(rows, []string{
			strconv.Itoa(ex.Row), ex.OwnerID, ex.ParcelID, ex.RawAddress, ex.Reason, ex.Detail,
		})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
