package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	csvadapter "github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/adapter/csv"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/observability"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/pipeline"
)

func newGeocodeCmd() *cobra.Command {
	var owners, out string
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Geocode every distinct owner address through Mapbox",
		Long: `Reads the ownership rows, geocodes each distinct non-empty raw address
and writes a JSON object of results keyed by normalized address. Failed
lookups are recorded as API_ERROR or NO_RESULT, never dropped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return geocodeOwners(cmd.Context(), cmd.OutOrStdout(), owners, out)
		},
	}
	cmd.Flags().StringVar(&owners, "owners", "", "ownership rows CSV")
	cmd.Flags().StringVar(&out, "out", "-", "output JSON file, - for stdout")
	_ = cmd.MarkFlagRequired("owners")
	return cmd
}

func geocodeOwners(ctx context.Context, stdout io.Writer, ownersPath, out string) error {
	e, err := loadEnv(observability.NewCLILogger)
	if err != nil {
		return err
	}
	g := e.geocoder()
	if g == nil {
		return errors.New("geocoding requires MAPBOX_TOKEN")
	}

	owners, err := csvadapter.ReadOwnersFile(ownersPath)
	if err != nil {
		return err
	}
	set, err := pipeline.GeocodeAddresses(ctx, g, owners, e.logger, e.metrics)
	if err != nil {
		return err
	}

	if out == "-" {
		return csvadapter.WriteGeocodes(stdout, set)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := csvadapter.WriteGeocodes(f, set); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
