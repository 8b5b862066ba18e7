package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/config"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/observability"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces classified records and mailing entries to Kafka.
// It implements pipeline.Publisher.
type Publisher struct {
	records      messageWriter
	mailing      messageWriter
	recordsTopic string
	mailingTopic string
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewPublisher creates producers for the configured records and mailing topics.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		records:      newWriter(cfg.KafkaBrokers, cfg.KafkaRecordsTopic),
		mailing:      newWriter(cfg.KafkaBrokers, cfg.KafkaMailingTopic),
		recordsTopic: cfg.KafkaRecordsTopic,
		mailingTopic: cfg.KafkaMailingTopic,
		logger:       logger,
		metrics:      metrics,
	}
}

func newWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
}

// Publish writes every record and mailing entry of the report, one
// WriteMessages call per topic.
func (p *Publisher) Publish(ctx context.Context, report *domain.Report) error {
	recordMsgs := make([]kafkago.Message, len(report.Records))
	for i := range report.Records {
		msg, err := recordMessage(report.Records[i], report.RunID, report.GeneratedAt)
		if err != nil {
			return err
		}
		recordMsgs[i] = msg
	}
	mailingMsgs := make([]kafkago.Message, len(report.MailingList))
	for i := range report.MailingList {
		msg, err := mailingMessage(report.MailingList[i], report.RunID)
		if err != nil {
			return err
		}
		mailingMsgs[i] = msg
	}

	if err := p.write(ctx, p.records, p.recordsTopic, recordMsgs); err != nil {
		return err
	}
	if err := p.write(ctx, p.mailing, p.mailingTopic, mailingMsgs); err != nil {
		return err
	}
	p.logger.Info("report published",
		"run_id", report.RunID,
		"records", len(recordMsgs),
		"mailing_entries", len(mailingMsgs),
	)
	return nil
}

func (p *Publisher) write(ctx context.Context, w messageWriter, topic string, msgs []kafkago.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	p.metrics.MessagesProduced.WithLabelValues(topic).Add(float64(len(msgs)))
	return nil
}

// Close flushes and closes both producers.
func (p *Publisher) Close() error {
	return errors.Join(p.records.Close(), p.mailing.Close())
}

// recordMessage marshals a ClassifiedRecord into a Kafka message keyed by record ID.
func recordMessage(rec domain.ClassifiedRecord, runID string, generatedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record %s: %w", rec.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(rec.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "confidence", Value: []byte(rec.Confidence)},
			{Key: "channel", Value: []byte(rec.RoutingChannel)},
			{Key: "run_id", Value: []byte(runID)},
			{Key: "generated_at", Value: []byte(generatedAt.Format(time.RFC3339))},
		},
	}, nil
}

// mailingMessage marshals a MailingListEntry keyed by owner so one owner's
// letters land on one partition.
func mailingMessage(e domain.MailingListEntry, runID string) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize mailing entry %s: %w", e.RecordID, err)
	}
	return kafkago.Message{
		Key:   []byte(e.OwnerID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "confidence", Value: []byte(e.Confidence)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
