package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	httpadapter "github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/adapter/http"
	kafkaadapter "github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/adapter/kafka"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/observability"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/pipeline"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /healthz, /readyz, /metrics and POST /v1/runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	e, err := loadEnv(observability.NewLogger)
	if err != nil {
		return err
	}
	logger := e.logger

	var opts []pipeline.Option
	var publisher *kafkaadapter.Publisher
	if e.cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(e.cfg, logger, e.metrics)
		opts = append(opts, pipeline.WithPublisher(publisher))
	}
	runner := pipeline.New(e.cfg.Workers, logger, e.metrics, opts...)

	if err := runner.SelfCheck(ctx); err != nil {
		logger.Error("self-check failed, readiness stays down", "error", err)
	}

	srv := httpadapter.NewServer(e.cfg.HTTPAddr, runner, runner, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error("http server error", "error", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return err
}
