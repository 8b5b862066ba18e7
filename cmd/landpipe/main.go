// Command landpipe reconciles cadastral owner addresses against geocoding
// results, classifies each address by confidence, routes it to direct mail
// or agency investigation and writes the campaign funnels and mailing list.
//
// Usage:
//
//	landpipe geocode --owners data/owners.csv --out data/geocodes.json
//	landpipe run --campaign campaign.yaml
//	landpipe validate out/agrate/report.json
//	landpipe serve
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/adapter/mapbox"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/config"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/observability"
)

// Metrics register with the default registry, which allows one set per process.
var processMetrics = sync.OnceValue(observability.NewMetrics)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "landpipe",
		Short:        "Address reconciliation and confidence classification for land-acquisition campaigns",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newGeocodeCmd(), newValidateCmd(), newServeCmd())
	return root
}

// env is the process-wide wiring shared by every subcommand.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// loadEnv reads the config and builds the shared wiring. Commands that write
// results to stdout pass observability.NewCLILogger.
func loadEnv(newLogger func(*config.Config) *slog.Logger) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return nil, err
	}
	e := &env{
		cfg:     cfg,
		logger:  newLogger(cfg),
		metrics: processMetrics(),
	}
	if cfg.MapboxEnabled {
		e.metrics.GeocodeEnabled.Set(1)
	}
	return e, nil
}

// geocoder returns the cached Mapbox geocoder, or nil when geocoding is disabled.
func (e *env) geocoder() domain.Geocoder {
	if !e.cfg.MapboxEnabled {
		e.logger.Info("mapbox geocoding disabled")
		return nil
	}
	client := mapbox.NewClient(e.cfg.MapboxToken, e.cfg.MapboxCountry, e.cfg.MapboxTimeout, e.logger, e.metrics)
	e.logger.Info("mapbox geocoding enabled", "cache_size", e.cfg.MapboxCacheSize, "timeout", e.cfg.MapboxTimeout)
	return mapbox.NewCachedGeocoder(client, e.cfg.MapboxCacheSize, e.metrics)
}
