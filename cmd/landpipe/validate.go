package main

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	csvadapter "github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/adapter/csv"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
)

// errValidationFailed is returned after the per-phase listing has been printed.
var errValidationFailed = errors.New("validation failed")

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate REPORT_JSON",
		Short: "Re-certify a written report.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := csvadapter.ReadReportFile(args[0])
			if err != nil {
				return err
			}
			return validateReport(cmd.OutOrStdout(), report)
		},
	}
}

func validateReport(w io.Writer, r *domain.Report) error {
	fmt.Fprintf(w, "=== Report Validation: %s (run %s) ===\n\n", r.Campaign, r.RunID)

	phases := []*phase{
		validateConsistency(r),
		validateSummary(r),
		validateClassification(r),
		validateMailingList(r),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
	}
	fmt.Fprintf(w, "\nRecords: %d, mailing rows: %d, excluded rows: %d\n",
		len(r.Records), len(r.MailingList), len(r.Excluded))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return nil
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return errValidationFailed
}

func validateConsistency(r *domain.Report) *phase {
	p := &phase{name: "Cross-artifact consistency"}
	var ce *domain.ConsistencyError
	if err := domain.CertifyConsistency(r); errors.As(err, &ce) {
		for _, v := range ce.Violations {
			p.errorf("%s", v)
		}
	}
	return p
}

func validateSummary(r *domain.Report) *phase {
	p := &phase{name: "Summary counts"}
	s := r.Summary
	check := func(field string, got, want int) {
		if got != want {
			p.errorf("summary %s = %d, report has %d", field, got, want)
		}
	}
	check("records", s.Records, len(r.Records))
	check("excluded", s.Excluded, len(r.Excluded))
	check("mailing_rows", s.MailingRows, len(r.MailingList))
	check("mailing_owners", s.MailingOwners, domain.UniqueOwners(r.MailingList))
	check("direct_mail+agency", s.DirectMail+s.Agency, len(r.Records))
	return p
}

// validateClassification recomputes each record's tier from its stored
// reconciliation fields.
func validateClassification(r *domain.Report) *phase {
	p := &phase{name: "Record classification"}
	seen := make(map[string]bool, len(r.Records))
	for _, rec := range r.Records {
		if seen[rec.ID] {
			p.errorf("duplicate record id %s", rec.ID)
		}
		seen[rec.ID] = true

		if !slices.Contains(domain.ConfidenceTiers, rec.Confidence) {
			p.errorf("record %s: unknown confidence %q", rec.ID, rec.Confidence)
			continue
		}
		want, _ := domain.Classify(domain.ReconciliationOutcome{
			NumberMatch:       rec.NumberMatch,
			CompletenessScore: rec.Completeness,
			MissingFields:     rec.MissingFields,
			GeocodeStatus:     rec.Geocode.Status,
			AddressParsed:     rec.OriginalAddress != nil,
		})
		if want != rec.Confidence {
			p.errorf("record %s: stored %s, recomputed %s", rec.ID, rec.Confidence, want)
		}
	}
	return p
}

func validateMailingList(r *domain.Report) *phase {
	p := &phase{name: "Mailing list"}
	byID := make(map[string]domain.ClassifiedRecord, len(r.Records))
	for _, rec := range r.Records {
		byID[rec.ID] = rec
	}
	for _, e := range r.MailingList {
		rec, ok := byID[e.RecordID]
		if !ok {
			p.errorf("mailing entry for unknown record %s", e.RecordID)
			continue
		}
		if rec.RoutingChannel != domain.ChannelDirectMail {
			p.errorf("mailing entry %s comes from a %s record", e.RecordID, rec.RoutingChannel)
		}
		if e.Address.Street == "" || e.Address.City == "" {
			p.errorf("mailing entry %s has an incomplete address: %q", e.RecordID, e.Address.Line())
		}
	}
	return p
}
