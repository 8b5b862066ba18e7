package csv

import (
	stdcsv "encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
)

// Column aliases accepted in input headers. Headers are matched after
// lower-casing and replacing spaces with underscores.
var (
	municipalityCols   = []string{"municipality", "comune"}
	provinceCols       = []string{"province", "provincia", "prov"}
	sheetCols          = []string{"sheet", "foglio"}
	parcelCols         = []string{"parcel", "particella", "mappale"}
	hectaresCols       = []string{"hectares", "ettari", "area_ha"}
	ownerIDCols        = []string{"owner_id", "cf", "codice_fiscale"}
	ownerNameCols      = []string{"owner_name", "nominativo", "denominazione"}
	classificationCols = []string{"classification", "classamento", "categoria"}
	rawAddressCols     = []string{"raw_address", "indirizzo", "domicilio"}
	ownershipTypeCols  = []string{"ownership_type", "tipo_proprieta", "tipo"}
	quotaCols          = []string{"quota"}
)

// header maps canonical column names to their index in a CSV header row.
type header map[string]int

func parseHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		name = strings.TrimPrefix(name, "\ufeff")
		name = strings.ToLower(strings.Join(strings.Fields(name), "_"))
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h
}

// index returns the position of the first alias present, or -1.
func (h header) index(aliases []string) int {
	for _, a := range aliases {
		if i, ok := h[a]; ok {
			return i
		}
	}
	return -1
}

func (h header) require(aliases ...[]string) error {
	for _, a := range aliases {
		if h.index(a) < 0 {
			return fmt.Errorf("%w: missing column %q", domain.ErrInputShape, a[0])
		}
	}
	return nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// readTable reads a header and all data rows. Data row numbers are 1-based
// file line numbers, so the first data row is row 2.
func readTable(r io.Reader) (header, [][]string, error) {
	cr := stdcsv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: empty file", domain.ErrInputShape)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	return parseHeader(first), rows, nil
}

// ReadParcels reads the campaign parcel list.
func ReadParcels(r io.Reader) ([]domain.Parcel, error) {
	h, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := h.require(municipalityCols, sheetCols, parcelCols); err != nil {
		return nil, err
	}

	var (
		mun, prov = h.index(municipalityCols), h.index(provinceCols)
		sheet     = h.index(sheetCols)
		parcel    = h.index(parcelCols)
		area      = h.index(hectaresCols)
	)
	parcels := make([]domain.Parcel, 0, len(rows))
	for i, row := range rows {
		ha, err := parseHectares(cell(row, area))
		if err != nil {
			return nil, &domain.InputShapeError{Row: i + 2, Reason: "invalid_hectares", Detail: err.Error()}
		}
		parcels = append(parcels, domain.Parcel{
			Municipality: cell(row, mun),
			Province:     cell(row, prov),
			Sheet:        cell(row, sheet),
			Parcel:       cell(row, parcel),
			Hectares:     ha,
		})
	}
	return parcels, nil
}

// parseHectares accepts both "1.5" and the Italian "1,5".
func parseHectares(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	return &v, nil
}

// ReadOwners reads the cadastral ownership extraction. Rows with missing
// values are returned as-is; qualification reports them as excluded.
func ReadOwners(r io.Reader) ([]domain.OwnershipRecord, error) {
	h, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := h.require(municipalityCols, sheetCols, parcelCols, ownerIDCols, rawAddressCols); err != nil {
		return nil, err
	}

	var (
		mun, prov      = h.index(municipalityCols), h.index(provinceCols)
		sheet, parcel  = h.index(sheetCols), h.index(parcelCols)
		ownerID, name  = h.index(ownerIDCols), h.index(ownerNameCols)
		classification = h.index(classificationCols)
		address        = h.index(rawAddressCols)
		ownership      = h.index(ownershipTypeCols)
		quota          = h.index(quotaCols)
	)
	owners := make([]domain.OwnershipRecord, 0, len(rows))
	for i, row := range rows {
		owners = append(owners, domain.OwnershipRecord{
			Row:            i + 2,
			Municipality:   cell(row, mun),
			Province:       cell(row, prov),
			Sheet:          cell(row, sheet),
			Parcel:         cell(row, parcel),
			OwnerID:        cell(row, ownerID),
			OwnerName:      cell(row, name),
			Classification: cell(row, classification),
			RawAddress:     cell(row, address),
			OwnershipType:  cell(row, ownership),
			Quota:          cell(row, quota),
		})
	}
	return owners, nil
}

// ReadGeocodes decodes a JSON object mapping raw addresses to geocode
// results. Keys are normalized so lookups ignore case and spacing.
func ReadGeocodes(r io.Reader) (domain.GeocodeSet, error) {
	var raw map[string]domain.GeocodeResult
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode geocodes: %w", err)
	}
	return domain.NormalizeGeocodes(raw), nil
}

// WriteGeocodes encodes a geocode set as indented JSON with sorted keys.
func WriteGeocodes(w io.Writer, set domain.GeocodeSet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(set); err != nil {
		return fmt.Errorf("encode geocodes: %w", err)
	}
	return nil
}

// ReadReport decodes a report previously written as report.json.
func ReadReport(r io.Reader) (*domain.Report, error) {
	var report domain.Report
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

// ReadParcelsFile opens path and reads parcels from it.
func ReadParcelsFile(path string) ([]domain.Parcel, error) {
	return readFile(path, ReadParcels)
}

// ReadOwnersFile opens path and reads ownership rows from it.
func ReadOwnersFile(path string) ([]domain.OwnershipRecord, error) {
	return readFile(path, ReadOwners)
}

// ReadGeocodesFile opens path and reads a geocode set from it.
func ReadGeocodesFile(path string) (domain.GeocodeSet, error) {
	return readFile(path, ReadGeocodes)
}

// ReadReportFile opens path and reads a report from it.
func ReadReportFile(path string) (*domain.Report, error) {
	return readFile(path, ReadReport)
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
