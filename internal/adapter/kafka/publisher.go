package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hilltop-site-loader/internal/config"
	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per enriched record to a Kafka topic.
// It implements pipeline.RecordPublisher.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, topic: cfg.KafkaTopic, logger: logger}
}

// Publish writes the dataset in a single WriteMessages call. Records are
// keyed by site name so a site's updates land on one partition.
func (p *Publisher) Publish(ctx context.Context, records []domain.EnrichedRecord) error {
	if len(records) == 0 {
		return nil
	}
	loadedAt := domain.Now()
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i], loadedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.Debug("records published", "topic", p.topic, "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// recordMessage is the wire shape of a published record.
type recordMessage struct {
	Name              string  `json:"name"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	MeasurementName   *string `json:"measurement_name"`
	MeasurementStatus string  `json:"measurement_status"`
}

// serializeToMessage marshals an EnrichedRecord into a Kafka message.
func serializeToMessage(r domain.EnrichedRecord, loadedAt time.Time) (kafkago.Message, error) {
	body := recordMessage{
		Name:              r.Name,
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
		MeasurementStatus: string(r.Measurement.Status),
	}
	if r.Measurement.IsPresent() {
		name := r.Measurement.Name
		body.MeasurementName = &name
	}
	data, err := json.Marshal(body)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record %q: %w", r.Name, err)
	}
	return kafkago.Message{
		Key:   []byte(r.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "measurement_status", Value: []byte(r.Measurement.Status)},
			{Key: "loaded_at", Value: []byte(loadedAt.Format(time.RFC3339))},
		},
	}, nil
}
