// Package events publishes fetched weather records to an event stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kjstillabower/city-weather/internal/models"
)

// Publisher emits one event per fetched record.
type Publisher interface {
	Publish(ctx context.Context, rec models.WeatherRecord) error
	Close() error
}

// RecordEvent is the message value written for each record.
type RecordEvent struct {
	Type   string               `json:"type"`
	Record models.WeatherRecord `json:"record"`
	SentAt time.Time            `json:"sent_at"`
}

const recordEventType = "weather.fetched"

// Nop discards events. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.WeatherRecord) error { return nil }
func (Nop) Close() error                                        { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes records to a Kafka topic keyed by city so all events
// for a city land on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaPublisher creates a synchronous publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// Publish encodes rec and writes it.
func (p *KafkaPublisher) Publish(ctx context.Context, rec models.WeatherRecord) error {
	msg, err := p.message(rec)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) message(rec models.WeatherRecord) (kafka.Message, error) {
	value, err := json.Marshal(RecordEvent{Type: recordEventType, Record: rec, SentAt: p.now().UTC()})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strings.ToLower(rec.City)),
		Value: value,
	}, nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// New returns a KafkaPublisher when brokers are set, otherwise Nop.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Nop{}
	}
	return NewKafkaPublisher(brokers, topic)
}
