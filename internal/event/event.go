// Package event defines the notification contract emitted by the order
// lifecycle engine and a fire-and-forget dispatcher for delivering it.
//
// Delivery is best-effort and at-most-once: emitting an event never blocks
// and never fails the operation that produced it.
package event

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Audience selects the notification channel an envelope targets.
type Audience string

const (
	// AudienceAdmin targets administrative consoles.
	AudienceAdmin Audience = "admin"
	// AudienceUser targets the single user identified by Envelope.UserID.
	AudienceUser Audience = "user"
)

// Event is a notification payload. Kind returns a stable, transport-agnostic
// discriminator.
type Event interface {
	Kind() string
}

// OrderCreated is emitted once per successfully created order.
type OrderCreated struct {
	OrderID      int64
	Code         string
	CustomerName string
	Total        decimal.Decimal
	Status       string
	CreatedAt    time.Time
}

func (OrderCreated) Kind() string { return "order.created" }

// OrderStatusChanged is emitted after a successful status transition.
type OrderStatusChanged struct {
	OrderID   int64
	NewStatus string
}

func (OrderStatusChanged) Kind() string { return "order.status_changed" }

// InventoryChanged is emitted after a stock mutation, carrying the product's
// new aggregate stock.
type InventoryChanged struct {
	ProductID int64
	NewStock  int
}

func (InventoryChanged) Kind() string { return "inventory.changed" }

// Envelope is an event routed to one audience.
type Envelope struct {
	Audience Audience
	UserID   int64 // set when Audience == AudienceUser
	Event    Event
}

// Bus is the emitting side of the notification fan-out.
type Bus interface {
	// Broadcast sends the event to the administrative channel.
	Broadcast(ctx context.Context, e Event)
	// Notify sends the event to the given user's channel.
	Notify(ctx context.Context, userID int64, e Event)
}

// Nop is a Bus that discards everything. Useful for tools and tests.
type Nop struct{}

func (Nop) Broadcast(context.Context, Event)     {}
func (Nop) Notify(context.Context, int64, Event) {}
