package kafkax

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader     messageReader
	logger     *slog.Logger
	handler    Handler
	retryDelay time.Duration
}

type ConsumerConfig struct {
	Brokers string
	// GroupID is required to read every partition; without it kafka-go reads partition 0 only.
	GroupID string
	Topic   string
	// StartOffset applies when the group has no committed offset; kafka.LastOffset by default.
	StartOffset int64
}

func NewConsumer(logger *slog.Logger, cfg ConsumerConfig, handler Handler) (*Consumer, error) {
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka consumer: group id is required")
	}
	start := cfg.StartOffset
	if start == 0 {
		start = kafka.LastOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: start,
	})
	return &Consumer{reader: reader, logger: logger, handler: handler, retryDelay: time.Second}, nil
}

// Run reads until ctx is cancelled. Each message is handled inside a span continuing the
// producer's trace; handler errors are logged and the message is not retried.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}

		meta := ExtractEventMeta(msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ExtractTraceContext(ctx, msg), "kafka.consume",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
				attribute.String("messaging.event_type", meta.EventType),
			),
		)
		if err := c.handler(ctxSpan, msg); err != nil {
			c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
			span.RecordError(err)
		}
		span.End()
	}
}
