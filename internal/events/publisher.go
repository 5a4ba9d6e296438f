// Package events publishes alert level transitions to downstream consumers.
// Each transition becomes one Kafka message keyed by session ID, so every
// event of a session lands on the same partition in order.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/banshee-data/drowsiness.report/internal/alertness"
	"github.com/banshee-data/drowsiness.report/internal/monitoring"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "drowsiness.transitions"

var ErrNoBrokers = errors.New("no kafka brokers configured")

// Publisher accepts transitions for delivery.
type Publisher interface {
	Publish(ctx context.Context, t alertness.Transition) error
	Close() error
}

// Event is the wire form of a transition.
type Event struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	Frame       int64     `json:"frame"`
	At          time.Time `json:"at"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Level       int       `json:"level"`
	Score       int       `json:"score"`
	Factors     []string  `json:"factors"`
	Sustained   bool      `json:"sustained_anomaly"`
	NoFace      bool      `json:"no_face"`
	Measurement bool      `json:"measurement_requested"`
}

// NewEvent converts a transition to its wire form.
func NewEvent(t alertness.Transition) Event {
	factors := t.Factors
	if factors == nil {
		factors = []string{}
	}
	return Event{
		Type:        "level_transition",
		SessionID:   t.SessionID,
		Frame:       t.Frame,
		At:          t.At.UTC(),
		From:        t.From.String(),
		To:          t.To.String(),
		Level:       int(t.To),
		Score:       t.Score,
		Factors:     factors,
		Sustained:   t.SustainedAnomaly,
		NoFace:      t.NoFace,
		Measurement: t.MeasurementRequested,
	}
}

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// WriteTimeout bounds each publish; 0 means 5s.
	WriteTimeout time.Duration
}

// KafkaPublisher writes transition events to a Kafka topic.
type KafkaPublisher struct {
	w       messageWriter
	topic   string
	timeout time.Duration

	mu     sync.Mutex
	sent   int64
	failed int64
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, topic, cfg.WriteTimeout), nil
}

func newKafkaPublisher(w messageWriter, topic string, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{w: w, topic: topic, timeout: timeout}
}

// Publish writes one event synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, t alertness.Transition) error {
	b, err := json.Marshal(NewEvent(t))
	if err != nil {
		return fmt.Errorf("failed to encode transition: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.SessionID),
		Value: b,
		Time:  t.At,
	})

	p.mu.Lock()
	if err != nil {
		p.failed++
	} else {
		p.sent++
	}
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

// Counts returns the number of successful and failed publishes.
func (p *KafkaPublisher) Counts() (sent, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.failed
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// LogPublisher writes events to the diagnostic log. It is used when no broker
// is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, t alertness.Transition) error {
	monitoring.Logf("transition %s: %s -> %s (score %d, factors %v)",
		t.SessionID, t.From, t.To, t.Score, t.Factors)
	return nil
}

func (LogPublisher) Close() error { return nil }
