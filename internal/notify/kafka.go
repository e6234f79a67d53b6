package notify

import (
	"context"
	"strconv"
	"sync"
	"time"

	"circleburo/internal/events"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink публикует события заявок в топик; ключ сообщения id заявки.
type KafkaSink struct {
	writer messageWriter
	logger *zerolog.Logger
	warn   sync.Once
}

func NewKafkaSink(brokers []string, topic string, logger *zerolog.Logger) *KafkaSink {
	s := &KafkaSink{logger: logger}
	if len(brokers) == 0 {
		return s
	}
	s.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return s
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Notify(ctx context.Context, event *events.Event) error {
	if s.writer == nil {
		s.warn.Do(func() {
			s.logger.Warn().Msg("kafka brokers not configured, lead events are not published")
		})
		return ErrSinkDisabled
	}

	p, err := event.DecodeLead()
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(p.LeadID, 10)),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}

func (s *KafkaSink) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
