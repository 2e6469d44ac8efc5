// Package kafka publishes dispatched events to a Kafka topic. Writes are
// best-effort: failures are logged and the event is lost, matching the
// at-most-once contract of the dispatcher.
package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/duyanhad/shop-api/internal/event"
)

const writeTimeout = 5 * time.Second

// Sink writes event envelopes to a single Kafka topic as JSON messages keyed
// by audience (admin events and per-user events partition separately).
type Sink struct {
	writer *kafka.Writer
	lg     *zap.Logger
}

// NewSink creates a Sink targeting the given brokers and topic.
func NewSink(lg *zap.Logger, brokers []string, topic string) *Sink {
	return &Sink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		lg: lg,
	}
}

var _ event.Subscriber = (*Sink)(nil)

// Deliver encodes and writes one envelope. Errors never propagate to the
// emitting operation.
func (s *Sink) Deliver(ctx context.Context, env event.Envelope) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err := s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   messageKey(env),
		Value: encodeEnvelope(env),
	})
	if err != nil {
		s.lg.Error("kafka publish failed",
			zap.Error(err),
			zap.String("kind", env.Event.Kind()),
		)
	}
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

func messageKey(env event.Envelope) []byte {
	if env.Audience == event.AudienceUser {
		return []byte("user-" + strconv.FormatInt(env.UserID, 10))
	}
	return []byte(string(event.AudienceAdmin))
}

// encodeEnvelope renders the envelope as a JSON object:
//
//	{"kind":"order.created","audience":"admin","payload":{...}}
func encodeEnvelope(env event.Envelope) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("kind", func(e *jx.Encoder) { e.Str(env.Event.Kind()) })
		e.Field("audience", func(e *jx.Encoder) { e.Str(string(env.Audience)) })
		if env.Audience == event.AudienceUser {
			e.Field("user_id", func(e *jx.Encoder) { e.Int64(env.UserID) })
		}
		e.Field("payload", func(e *jx.Encoder) { encodePayload(e, env.Event) })
	})
	return e.Bytes()
}

func encodePayload(e *jx.Encoder, ev event.Event) {
	switch ev := ev.(type) {
	case event.OrderCreated:
		e.Obj(func(e *jx.Encoder) {
			e.Field("order_id", func(e *jx.Encoder) { e.Int64(ev.OrderID) })
			e.Field("code", func(e *jx.Encoder) { e.Str(ev.Code) })
			e.Field("customer_name", func(e *jx.Encoder) { e.Str(ev.CustomerName) })
			e.Field("total", func(e *jx.Encoder) { e.Str(ev.Total.String()) })
			e.Field("status", func(e *jx.Encoder) { e.Str(ev.Status) })
			e.Field("created_at", func(e *jx.Encoder) { e.Str(ev.CreatedAt.UTC().Format(time.RFC3339)) })
		})
	case event.OrderStatusChanged:
		e.Obj(func(e *jx.Encoder) {
			e.Field("order_id", func(e *jx.Encoder) { e.Int64(ev.OrderID) })
			e.Field("new_status", func(e *jx.Encoder) { e.Str(ev.NewStatus) })
		})
	case event.InventoryChanged:
		e.Obj(func(e *jx.Encoder) {
			e.Field("product_id", func(e *jx.Encoder) { e.Int64(ev.ProductID) })
			e.Field("new_stock", func(e *jx.Encoder) { e.Int(ev.NewStock) })
		})
	default:
		e.Obj(nil)
	}
}
