// Package events publishes finished extraction records to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vesto-app/tenk/internal/model"
)

// DefaultTopic receives one message per company record.
const DefaultTopic = "tenk.extractions"

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the Kafka writer.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Publisher sends records keyed by symbol.
type Publisher struct {
	writer MessageWriter
	topic  string
}

// NewPublisher creates a Publisher backed by a kafka-go writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, eris.New("events: no brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(w, cfg.Topic), nil
}

// NewPublisherWithWriter wraps an existing writer. This allows mocking in tests.
func NewPublisherWithWriter(w MessageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

// envelope is the message value.
type envelope struct {
	Type   string              `json:"type"`
	SentAt time.Time           `json:"sent_at"`
	Record *model.EntityRecord `json:"record"`
}

// Publish writes rec to the topic keyed by its symbol.
func (p *Publisher) Publish(ctx context.Context, rec *model.EntityRecord) error {
	value, err := json.Marshal(envelope{Type: "tenk.record", SentAt: time.Now().UTC(), Record: rec})
	if err != nil {
		return eris.Wrapf(err, "events: marshal %s", rec.Symbol)
	}
	msg := kafka.Message{
		Key:   []byte(rec.Symbol),
		Value: value,
		Headers: []kafka.Header{
			{Key: "extraction_status", Value: []byte(rec.Status)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return eris.Wrapf(err, "events: publish %s to %s", rec.Symbol, p.topic)
	}
	zap.L().Debug("events: published record",
		zap.String("topic", p.topic),
		zap.String("symbol", rec.Symbol),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return eris.Wrap(p.writer.Close(), "events: close writer")
}
