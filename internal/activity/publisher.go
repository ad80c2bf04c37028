// Package activity streams session activity events to Kafka.
package activity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/turkim1/map-paris/internal/core/observability"
)

type Event struct {
	Kind        string    `json:"kind"` // query_region or places
	SessionID   string    `json:"session_id"`
	Lines       []string  `json:"lines"`
	WalkMinutes int       `json:"walk_minutes,omitempty"`
	Category    string    `json:"category,omitempty"`
	Outcome     string    `json:"outcome"`
	AreaKm2     float64   `json:"area_km2,omitempty"`
	Places      int       `json:"places,omitempty"`
	TS          time.Time `json:"ts"`
}

type Sink interface {
	Publish(Event) bool
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) bool { return false }

type Publisher struct {
	logger  *slog.Logger
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
}

func NewPublisher(logger *slog.Logger, brokers []string, topic string, queueSize int) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "overlap-server"
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("activity: create async producer: %w", err)
	}
	return newWithProducer(logger, prod, topic, queueSize), nil
}

func newWithProducer(logger *slog.Logger, prod sarama.AsyncProducer, topic string, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &Publisher{
		logger:  logger,
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("activity: marshal event", "err", err)
				continue
			}
			// keyed by session so one session's events stay ordered
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.SessionID),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncActivityEvent("error")
				p.logger.Warn("activity: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish never blocks; it reports false when the queue is full and the event is dropped.
func (p *Publisher) Publish(ev Event) bool {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	select {
	case p.events <- ev:
		observability.IncActivityEvent("queued")
		return true
	default:
		observability.IncActivityEvent("dropped")
		return false
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("activity: close producer: %w", err)
	}
	return nil
}
