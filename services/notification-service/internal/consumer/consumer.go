package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zapagenda/zapagenda/libs/kafkax"
)

type Handler func(ctx context.Context, msg kafka.Message) error

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Inbox interface {
	Claim(ctx context.Context, eventID, eventType string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type Config struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Consumer delivers each message to its handler at most once per event id.
// Offsets are committed only after the handler succeeded or gave up.
type Consumer struct {
	reader  Reader
	inbox   Inbox
	handler Handler
	logger  *slog.Logger
	cfg     Config
}

func NewReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func New(logger *slog.Logger, reader Reader, inbox Inbox, cfg Config, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Consumer{reader: reader, inbox: inbox, handler: handler, logger: logger, cfg: cfg}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			// Only a cancelled context ends up here; leave the offset
			// uncommitted so the message is redelivered.
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	eventID := meta.EventID
	if eventID == "" {
		eventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	eventType := meta.EventType
	if eventType == "" {
		eventType = msg.Topic
	}
	log := c.logger.With("event_id", eventID, "event_type", eventType)

	var (
		claimed bool
		err     error
	)
	for attempt := 1; ; attempt++ {
		claimed, err = c.inbox.Claim(ctxSpan, eventID, eventType)
		if err == nil {
			break
		}
		log.Error("inbox claim failed", "err", err, "attempt", attempt)
		if !sleep(ctx, c.backoff(attempt)) {
			return ctx.Err()
		}
	}
	if !claimed {
		log.Info("duplicate event ignored")
		return nil
	}

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil {
			return nil
		}
		log.Warn("handler error", "err", err, "attempt", attempt)
		if attempt < c.cfg.MaxAttempts && !sleep(ctx, c.backoff(attempt)) {
			break
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if ctx.Err() != nil {
		// Shutting down mid-retry: give the event back for redelivery.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := c.inbox.Release(relCtx, eventID); rerr != nil {
			log.Error("inbox release failed", "err", rerr)
		}
		return errors.Join(ctx.Err(), err)
	}
	log.Error("giving up on event", "err", err, "attempts", c.cfg.MaxAttempts)
	return nil
}

func (c *Consumer) backoff(attempt int) time.Duration {
	d := c.cfg.RetryBackoff << (attempt - 1)
	if limit := 30 * time.Second; d > limit || d <= 0 {
		d = limit
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
