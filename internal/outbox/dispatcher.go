package outbox

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher publishes outbox events to a Kafka topic keyed by aggregate id,
// so events of one order stay in one partition.
type Dispatcher struct {
	producer Producer
	topic    string
}

func NewDispatcher(producer Producer, topic string) *Dispatcher {
	return &Dispatcher{producer: producer, topic: topic}
}

// NewKafkaWriter builds the producer used in production.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, e Event) error {
	msg := kafka.Message{
		Topic: d.topic,
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "aggregate_type", Value: []byte(e.AggregateType)},
		},
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		log.Error().Err(err).Int64("event_id", e.ID).Str("event_type", e.Type).Msg("outbox dispatch failed")
		return err
	}
	log.Debug().Int64("event_id", e.ID).Str("event_type", e.Type).Msg("outbox dispatched")
	return nil
}
