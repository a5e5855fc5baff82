// Package kafkasink publishes the matching engine's fan-out events to
// Kafka, as an optional consumer of internal/matching.Bus — spec.md §4.4
// leaves the fan-out transport to the implementation ("a small set of
// typed channels or observer traits"); this is one observer among
// possibly several.
//
// It is grounded on the teacher codebase's jobs/broadcaster.Broadcaster:
// same sarama sync-producer construction and same drain-a-channel loop
// shape, adapted from replaying a pebble-backed outbox to draining the
// engine's in-process event bus directly (the engine has no outbox to
// replay — its Bus hands each event to every live subscriber's buffered
// channel, and an event that finds that buffer full is dropped, not
// retried).
package kafkasink

import (
	"context"
	"encoding/json"

	"clobcore/internal/matching"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Sink drains a matching.Bus subscription and publishes each event as a
// JSON message to a single Kafka topic.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// New dials brokers and constructs a sink publishing to topic.
func New(brokers []string, topic string, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Sink{producer: producer, topic: topic, logger: logger}, nil
}

// Run drains events from the engine's bus until ctx is done or the
// engine closes the channel via Unsubscribe.
func (s *Sink) Run(ctx context.Context, engine *matching.Engine) {
	ch := engine.Subscribe()
	defer engine.Unsubscribe(ch)

	s.logger.Info("kafka sink started", zap.String("topic", s.topic))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.publish(ev)
		}
	}
}

func (s *Sink) publish(ev matching.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshaling fan-out event", zap.Error(err))
		return
	}
	msg := &sarama.ProducerMessage{Topic: s.topic, Value: sarama.ByteEncoder(body)}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		s.logger.Error("publishing fan-out event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// Close closes the underlying producer.
func (s *Sink) Close() error {
	return s.producer.Close()
}
