package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	csvadapter "github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/adapter/csv"
	kafkaadapter "github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/adapter/kafka"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/config"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/observability"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/pipeline"
)

type runOptions struct {
	campaign string
	name     string
	parcels  string
	owners   string
	geocodes string
	out      string
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify a campaign and write its report tables",
		Long: `Reads the parcel list and ownership rows, classifies every qualifying
(owner, address) pair against the geocode results and writes
classified_records.csv, funnel.csv, address_quality_distribution.csv,
mailing_list.csv, excluded.csv and report.json to the output directory.

Without --geocodes, addresses are geocoded live through Mapbox.
With KAFKA_ENABLED=true the certified report is also published.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCampaign(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.campaign, "campaign", "", "campaign manifest (YAML)")
	f.StringVar(&opts.name, "name", "", "campaign name")
	f.StringVar(&opts.parcels, "parcels", "", "parcel list CSV")
	f.StringVar(&opts.owners, "owners", "", "ownership rows CSV")
	f.StringVar(&opts.geocodes, "geocodes", "", "geocode results JSON")
	f.StringVar(&opts.out, "out", "", "output directory (default out/<name>)")
	return cmd
}

// resolveCampaign merges the optional manifest with flags; flags win.
func resolveCampaign(opts runOptions) (*config.Campaign, error) {
	c := &config.Campaign{}
	if opts.campaign != "" {
		var err error
		if c, err = config.LoadCampaign(opts.campaign); err != nil {
			return nil, err
		}
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.Name, opts.name)
	override(&c.Parcels, opts.parcels)
	override(&c.Owners, opts.owners)
	override(&c.Geocodes, opts.geocodes)
	override(&c.OutputDir, opts.out)

	if c.Parcels == "" || c.Owners == "" {
		return nil, errors.New("--parcels and --owners (or --campaign) are required")
	}
	if c.Name == "" {
		c.Name = "campaign"
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join("out", c.Name)
	}
	return c, nil
}

func runCampaign(ctx context.Context, w io.Writer, opts runOptions) error {
	c, err := resolveCampaign(opts)
	if err != nil {
		return err
	}
	e, err := loadEnv(observability.NewCLILogger)
	if err != nil {
		return err
	}

	parcels, err := csvadapter.ReadParcelsFile(c.Parcels)
	if err != nil {
		return err
	}
	owners, err := csvadapter.ReadOwnersFile(c.Owners)
	if err != nil {
		return err
	}
	geocodes, err := loadGeocodes(ctx, e, c.Geocodes, owners)
	if err != nil {
		return err
	}

	var runnerOpts []pipeline.Option
	if e.cfg.KafkaEnabled {
		pub := kafkaadapter.NewPublisher(e.cfg, e.logger, e.metrics)
		defer func() {
			if err := pub.Close(); err != nil {
				e.logger.Error("kafka publisher close error", "error", err)
			}
		}()
		runnerOpts = append(runnerOpts, pipeline.WithPublisher(pub))
	}

	runner := pipeline.New(e.cfg.Workers, e.logger, e.metrics, runnerOpts...)
	report, runErr := runner.Run(ctx, pipeline.Batch{
		Campaign:    c.Name,
		Parcels:     parcels,
		Owners:      owners,
		Geocodes:    geocodes,
		PrivateTags: c.PrivateTags,
	})

	var ce *domain.ConsistencyError
	if errors.As(runErr, &ce) {
		printViolations(w, ce.Violations)
		return runErr
	}
	if report != nil {
		if err := csvadapter.WriteReport(c.OutputDir, report); err != nil {
			return errors.Join(err, runErr)
		}
		printSummary(w, report, c.OutputDir)
	}
	return runErr
}

func loadGeocodes(ctx context.Context, e *env, path string, owners []domain.OwnershipRecord) (domain.GeocodeSet, error) {
	if path != "" {
		return csvadapter.ReadGeocodesFile(path)
	}
	g := e.geocoder()
	if g == nil {
		return nil, errors.New("no geocodes file given and MAPBOX_TOKEN is not set")
	}
	return pipeline.GeocodeAddresses(ctx, g, owners, e.logger, e.metrics)
}

func printSummary(w io.Writer, r *domain.Report, dir string) {
	s := r.Summary
	fmt.Fprintf(w, "Campaign %s (run %s)\n", r.Campaign, r.RunID)
	fmt.Fprintf(w, "  parcels: %d input, %d qualifying\n", s.InputParcels, s.QualifyingParcels)
	fmt.Fprintf(w, "  owners: %d, records: %d\n", s.Owners, s.Records)
	fmt.Fprintf(w, "  direct mail: %d, agency: %d, excluded rows: %d\n", s.DirectMail, s.Agency, s.Excluded)
	fmt.Fprintf(w, "  mailing list: %d rows for %d owners\n", s.MailingRows, s.MailingOwners)
	fmt.Fprintf(w, "Report written to %s\n", dir)
}

func printViolations(w io.Writer, violations []domain.Violation) {
	fmt.Fprintf(w, "Report refused: %d consistency violation(s)\n", len(violations))
	for i, v := range violations {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, v)
	}
}
