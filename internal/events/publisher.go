package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"carecal/pkg/kafka"
	kafka_config "carecal/pkg/kafka/config"
	kafka_middleware "carecal/pkg/kafka/middleware"
	"carecal/pkg/logger"
)

// KafkaPublisher writes slot events and rule events to their own topics,
// keyed by provider so each provider's events stay in order.
type KafkaPublisher struct {
	slots  *kafka.Producer
	rules  *kafka.Producer
	source string
}

func NewKafkaPublisher(cfg *kafka_config.Config, log *logger.Logger, metrics *kafka_middleware.Metrics, source string) (*KafkaPublisher, error) {
	slots, err := kafka.NewProducer(cfg, log, cfg.SlotEventsTopic)
	if err != nil {
		return nil, fmt.Errorf("create slot events producer: %w", err)
	}
	rules, err := kafka.NewProducer(cfg, log, cfg.RuleEventsTopic)
	if err != nil {
		_ = slots.Close()
		return nil, fmt.Errorf("create rule events producer: %w", err)
	}

	if cfg.EnableMiddleware {
		for _, p := range []*kafka.Producer{slots, rules} {
			p.Use(kafka_middleware.LoggingProducerMiddleware(log))
			if metrics != nil {
				p.Use(metrics.ProducerMiddleware())
			}
		}
	}

	return &KafkaPublisher{slots: slots, rules: rules, source: source}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := ToMessage(e, p.source)
	if err != nil {
		return err
	}
	if e.Type.IsRuleEvent() {
		return p.rules.Publish(ctx, msg)
	}
	return p.slots.Publish(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return errors.Join(p.slots.Close(), p.rules.Close())
}

// ToMessage encodes e as a Kafka message.
func ToMessage(e Event, source string) (kafka.Message, error) {
	return kafka.NewMessage().
		WithKey(e.ProviderID).
		WithValue(e).
		WithEventID(e.ID).
		WithEventType(string(e.Type)).
		WithCorrelationID(e.CorrelationID).
		WithSchemaVersion(SchemaVersion).
		WithSource(source).
		WithTimestamp(e.OccurredAt).
		Build()
}

// FromMessage decodes an event written by ToMessage.
func FromMessage(msg kafka.Message) (Event, error) {
	var e Event
	if err := msg.DecodeValue(&e); err != nil {
		return Event{}, kafka.NewPermanentError("decode event", err)
	}
	if e.Type == "" {
		e.Type = Type(msg.GetEventType())
	}
	return e, nil
}

// LogPublisher writes events to the log. It stands in for Kafka when
// KAFKA_ENABLED is false.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.log.Info("Event",
		"event_type", e.Type,
		"event_id", e.ID,
		"provider_id", e.ProviderID,
		"slot_id", e.SlotID,
		"rule_id", e.RuleID,
		"patient_id", e.PatientID,
		"correlation_id", e.CorrelationID,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder is a synchronous Emitter that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Publish(ctx context.Context, e Event) error {
	r.Emit(ctx, e)
	return nil
}

func (r *Recorder) Close() error { return nil }
