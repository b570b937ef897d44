package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"archaeoscan-gateway/internal/metrics"
)

// messageFetcher is the subset of *kafka.Reader the consumer needs.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes snapshot messages from a topic with a consumer group. Offsets are
// committed only after the snapshot was queued.
type KafkaSource struct {
	healthState

	reader messageFetcher
	sub    Submitter
	log    *zap.Logger
}

func NewKafkaSource(brokers []string, topic, group string, sub Submitter, m *metrics.Metrics, log *zap.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newKafkaSource(reader, sub, m, log.With(zap.String("topic", topic)))
}

func newKafkaSource(reader messageFetcher, sub Submitter, m *metrics.Metrics, log *zap.Logger) *KafkaSource {
	s := &KafkaSource{
		reader: reader,
		sub:    sub,
		log:    log.With(zap.String("component", "ingest-kafka")),
	}
	s.init("kafka", m)
	return s
}

func (s *KafkaSource) Run(ctx context.Context) error {
	defer func() {
		if err := s.reader.Close(); err != nil {
			s.log.Warn("kafka reader close", zap.Error(err))
		}
		s.set(Offline)
	}()

	s.set(Reconnecting)
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			s.set(Reconnecting)
			s.log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		s.set(Connected)

		handlePayload(ctx, msg.Value, "kafka", s.sub, true, s.log.With(zap.Int64("offset", msg.Offset)))
		if ctx.Err() != nil {
			return nil
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka commit offset %d: %w", msg.Offset, err)
		}
	}
}
