package event

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Subscriber receives dispatched envelopes. Deliver is called from the
// dispatcher's single worker goroutine; implementations that can block should
// bound their own time.
type Subscriber interface {
	Deliver(ctx context.Context, env Envelope)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, env Envelope)

func (f SubscriberFunc) Deliver(ctx context.Context, env Envelope) { f(ctx, env) }

// Dispatcher is an asynchronous, at-most-once event bus. Emitting never
// blocks: when the buffer is full the envelope is dropped and counted.
type Dispatcher struct {
	ch      chan Envelope
	subs    []Subscriber
	lg      *zap.Logger
	dropped atomic.Int64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewDispatcher creates a Dispatcher with the given buffer size and
// subscribers, and starts its worker goroutine. Call Close to stop it.
func NewDispatcher(lg *zap.Logger, buffer int, subs ...Subscriber) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		ch:   make(chan Envelope, buffer),
		subs: subs,
		lg:   lg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

var _ Bus = (*Dispatcher)(nil)

// Broadcast queues the event for the administrative channel.
func (d *Dispatcher) Broadcast(_ context.Context, e Event) {
	d.enqueue(Envelope{Audience: AudienceAdmin, Event: e})
}

// Notify queues the event for the given user's channel.
func (d *Dispatcher) Notify(_ context.Context, userID int64, e Event) {
	d.enqueue(Envelope{Audience: AudienceUser, UserID: userID, Event: e})
}

func (d *Dispatcher) enqueue(env Envelope) {
	select {
	case d.ch <- env:
	default:
		// At-most-once: a full buffer drops the event rather than blocking
		// the operation that emitted it.
		d.dropped.Add(1)
		d.lg.Warn("event dropped, buffer full",
			zap.String("kind", env.Event.Kind()),
			zap.String("audience", string(env.Audience)),
		)
	}
}

// Dropped returns the number of envelopes discarded due to a full buffer.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ctx := context.Background()
	for {
		select {
		case env := <-d.ch:
			d.deliver(ctx, env)
		case <-d.stop:
			// Drain what is already buffered, then exit.
			for {
				select {
				case env := <-d.ch:
					d.deliver(ctx, env)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) {
	for _, sub := range d.subs {
		sub.Deliver(ctx, env)
	}
}

// Close stops the worker after draining buffered envelopes.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}

// LogSink is a Subscriber that records every envelope to the logger. It is
// the default sink so emitted events are always observable.
type LogSink struct {
	lg *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(lg *zap.Logger) *LogSink {
	return &LogSink{lg: lg}
}

func (s *LogSink) Deliver(_ context.Context, env Envelope) {
	fields := []zap.Field{
		zap.String("kind", env.Event.Kind()),
		zap.String("audience", string(env.Audience)),
	}
	if env.Audience == AudienceUser {
		fields = append(fields, zap.Int64("user_id", env.UserID))
	}
	switch e := env.Event.(type) {
	case OrderCreated:
		fields = append(fields,
			zap.Int64("order_id", e.OrderID),
			zap.String("code", e.Code),
			zap.String("total", e.Total.String()),
		)
	case OrderStatusChanged:
		fields = append(fields,
			zap.Int64("order_id", e.OrderID),
			zap.String("new_status", e.NewStatus),
		)
	case InventoryChanged:
		fields = append(fields,
			zap.Int64("product_id", e.ProductID),
			zap.Int("new_stock", e.NewStock),
		)
	}
	s.lg.Info("event", fields...)
}
