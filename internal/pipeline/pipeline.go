package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/observability"
)

// Publisher delivers a certified report downstream.
type Publisher interface {
	Publish(ctx context.Context, report *domain.Report) error
}

// Batch is one campaign's worth of input: the parcel list, the ownership rows
// extracted for it and the geocode results fetched for their addresses.
type Batch struct {
	Campaign    string                   `json:"campaign"`
	Parcels     []domain.Parcel          `json:"parcels"`
	Owners      []domain.OwnershipRecord `json:"owners"`
	Geocodes    domain.GeocodeSet        `json:"geocodes"`
	PrivateTags []string                 `json:"private_tags,omitempty"`
}

// Rules returns the qualification rules for the batch.
func (b Batch) Rules() domain.QualificationRules {
	if len(b.PrivateTags) == 0 {
		return domain.DefaultQualificationRules()
	}
	return domain.QualificationRules{PrivateTags: b.PrivateTags}
}

// Runner classifies batches and assembles certified reports.
type Runner struct {
	workers   int
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithPublisher publishes every certified report before Run returns.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// New creates a Runner that classifies up to workers records concurrently.
func New(workers int, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Runner {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckReadiness returns nil once the runner has produced at least one
// certified report, either from a real batch or from SelfCheck.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("runner has not certified a report yet")
	}
	return nil
}

// Run classifies every qualifying (owner, address) pair of the batch and
// builds the report. A *domain.ConsistencyError means the report was refused.
// When publishing fails the certified report is still returned alongside the
// error so callers can persist it.
func (r *Runner) Run(ctx context.Context, b Batch) (*domain.Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID, "campaign", b.Campaign)

	r.metrics.BatchSize.Observe(float64(len(b.Owners)))

	rules := b.Rules()
	q := domain.Qualify(b.Parcels, b.Owners, rules)
	candidates := domain.ExpandAddresses(q.Rows)
	logger.Debug("batch qualified",
		"input_parcels", len(q.Input),
		"qualifying_parcels", q.QualifyingParcels(),
		"candidates", len(candidates),
	)

	records, excluded, err := r.classify(ctx, candidates, domain.NormalizeGeocodes(b.Geocodes), logger)
	if err != nil {
		r.metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("classify: %w", err)
	}

	report, err := domain.BuildReport(domain.ReportInput{
		RunID:    runID,
		Campaign: b.Campaign,
		Parcels:  b.Parcels,
		Owners:   b.Owners,
		Records:  records,
		Excluded: excluded,
		Rules:    rules,
	})
	if err != nil {
		var ce *domain.ConsistencyError
		if errors.As(err, &ce) {
			for _, v := range ce.Violations {
				r.metrics.ConsistencyViolations.WithLabelValues(v.Check).Inc()
			}
			r.metrics.RunsTotal.WithLabelValues("inconsistent").Inc()
			logger.Error("report refused", "error", err)
			return nil, err
		}
		r.metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build report: %w", err)
	}

	r.observe(report)

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, report); err != nil {
			r.metrics.RunsTotal.WithLabelValues("error").Inc()
			logger.Error("publish report failed", "error", err)
			return report, fmt.Errorf("publish report: %w", err)
		}
	}

	r.metrics.RunsTotal.WithLabelValues("success").Inc()
	r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	r.ready.Store(true)

	s := report.Summary
	logger.Info("run complete",
		"records", s.Records,
		"direct_mail", s.DirectMail,
		"agency", s.Agency,
		"excluded", s.Excluded,
		"mailing_rows", s.MailingRows,
		"duration", time.Since(start),
	)
	return report, nil
}

// classify fans candidates out over a bounded worker pool. Results land in an
// index-addressed slice so output order never depends on scheduling.
func (r *Runner) classify(ctx context.Context, candidates []domain.AddressCandidate, geocodes domain.GeocodeSet, logger *slog.Logger) ([]domain.ClassifiedRecord, []domain.ExcludedRow, error) {
	type slot struct {
		record   domain.ClassifiedRecord
		excluded *domain.ExcludedRow
	}
	slots := make([]slot, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			geocode, ok := geocodes.Lookup(c.RawAddress)
			if !ok {
				slots[i].excluded = missingGeocode(c)
				return nil
			}
			slots[i].record = domain.ClassifyCandidate(c, geocode)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	records := make([]domain.ClassifiedRecord, 0, len(slots))
	var excluded []domain.ExcludedRow
	for _, s := range slots {
		if s.excluded != nil {
			logger.Warn("address missing from geocode set, excluding",
				"owner_id", s.excluded.OwnerID,
				"raw_address", s.excluded.RawAddress,
			)
			excluded = append(excluded, *s.excluded)
			continue
		}
		rec := s.record
		if rec.OriginalAddress == nil {
			logger.Debug("address parse failed", "record_id", rec.ID, "owner_id", rec.OwnerID, "raw_address", rec.RawAddress)
		}
		if err := rec.Geocode.Err(); err != nil {
			logger.Debug("geocode failure", "record_id", rec.ID, "owner_id", rec.OwnerID, "error", err)
		}
		records = append(records, rec)
	}
	return records, excluded, nil
}

func missingGeocode(c domain.AddressCandidate) *domain.ExcludedRow {
	row := 0
	if len(c.Rows) > 0 {
		row = c.Rows[0]
	}
	rows := make([]string, len(c.Rows))
	for i, n := range c.Rows {
		rows[i] = strconv.Itoa(n)
	}
	return &domain.ExcludedRow{
		Row:        row,
		OwnerID:    c.OwnerID,
		ParcelID:   strings.Join(c.ParcelIDs, ";"),
		RawAddress: c.RawAddress,
		Reason:     domain.ReasonMissingGeocode,
		Detail:     "rows " + strings.Join(rows, ","),
	}
}

func (r *Runner) observe(report *domain.Report) {
	for _, rec := range report.Records {
		r.metrics.RecordsClassified.WithLabelValues(string(rec.Confidence)).Inc()
		r.metrics.RecordsRouted.WithLabelValues(string(rec.RoutingChannel)).Inc()
	}
	for _, ex := range report.Excluded {
		r.metrics.ExcludedRows.WithLabelValues(ex.Reason).Inc()
	}
}
