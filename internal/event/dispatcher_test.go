package event

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collectSink struct {
	mu   sync.Mutex
	envs []Envelope
}

func (s *collectSink) Deliver(_ context.Context, env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
}

func (s *collectSink) all() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.envs...)
}

func TestDispatcher_Delivers(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(zap.NewNop(), 16, sink)

	ctx := context.Background()
	d.Broadcast(ctx, OrderStatusChanged{OrderID: 1, NewStatus: "Shipped"})
	d.Notify(ctx, 7, InventoryChanged{ProductID: 11, NewStock: 3})
	d.Close()

	envs := sink.all()
	require.Len(t, envs, 2)

	assert.Equal(t, AudienceAdmin, envs[0].Audience)
	assert.Equal(t, "order.status_changed", envs[0].Event.Kind())

	assert.Equal(t, AudienceUser, envs[1].Audience)
	assert.Equal(t, int64(7), envs[1].UserID)
	assert.Equal(t, "inventory.changed", envs[1].Event.Kind())
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_FanOut(t *testing.T) {
	first := &collectSink{}
	second := &collectSink{}
	d := NewDispatcher(zap.NewNop(), 16, first, second)

	d.Broadcast(context.Background(), InventoryChanged{ProductID: 1, NewStock: 5})
	d.Close()

	assert.Len(t, first.all(), 1)
	assert.Len(t, second.all(), 1)
}

func TestDispatcher_DrainsOnClose(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(zap.NewNop(), 64, sink)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		d.Broadcast(ctx, OrderStatusChanged{OrderID: int64(i), NewStatus: "Processing"})
	}
	d.Close()

	assert.Len(t, sink.all(), 50)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	// Stall the worker on the first envelope so the buffer can fill up.
	gate := make(chan struct{})
	var once sync.Once
	blocking := SubscriberFunc(func(context.Context, Envelope) {
		once.Do(func() { <-gate })
	})
	d := NewDispatcher(zap.NewNop(), 1, blocking)

	ctx := context.Background()
	// First envelope occupies the worker, second fills the buffer; everything
	// after that must be dropped, not block the caller.
	for i := 0; i < 10; i++ {
		d.Broadcast(ctx, InventoryChanged{ProductID: int64(i), NewStock: 0})
	}

	assert.GreaterOrEqual(t, d.Dropped(), int64(8))
	close(gate)
	d.Close()
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), 4, &collectSink{})
	d.Close()
	d.Close()
}
