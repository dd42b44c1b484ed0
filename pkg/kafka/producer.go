package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// SubtitleEvent represents a lifecycle event about a subtitle language or version
type SubtitleEvent struct {
	EventType     string          `json:"event_type"` // version_added, language_deleted
	VideoID       string          `json:"video_id"`
	LanguageCode  string          `json:"language_code"`
	LanguageID    string          `json:"language_id"`
	VersionID     string          `json:"version_id,omitempty"`
	VersionNumber int             `json:"version_number,omitempty"`
	Origin        string          `json:"origin,omitempty"`
	Visibility    string          `json:"visibility,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	SchemaVersion string          `json:"schema_version"`
	Timestamp     time.Time       `json:"timestamp"`
}

// PublishSubtitleEvent publishes a subtitle lifecycle event to Kafka.
// Messages are keyed by (video, language) so per-language ordering holds.
func (p *Producer) PublishSubtitleEvent(ctx context.Context, event *SubtitleEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishSubtitleEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.VideoID + ":" + event.LanguageCode),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "video_id", Value: []byte(event.VideoID)},
			{Key: "language_code", Value: []byte(event.LanguageCode)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish subtitle event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":    event.EventType,
		"video_id":      event.VideoID,
		"language_code": event.LanguageCode,
	}).Debug("Published subtitle event")

	return nil
}
