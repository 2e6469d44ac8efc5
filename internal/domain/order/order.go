package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors shared by the order lifecycle operations.
var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrPermissionDenied is returned when the acting identity is not allowed
	// to perform the operation. It is deliberately used instead of ErrNotFound
	// for cross-identity access, so callers cannot probe for order existence.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStatusConflict is returned by Repository.UpdateStatus when the stored
	// status no longer matches the expected one, meaning a concurrent writer
	// got there first.
	ErrStatusConflict = errors.New("order status conflict")

	// ErrEmptyItems is returned when an order is created without line items.
	ErrEmptyItems = errors.New("items required")
)

// Line is an immutable snapshot of one purchased item. Name, price, and image
// are captured at creation time and never resynced to live catalog state.
type Line struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Size      string          `json:"size,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"image_url,omitempty"`
}

// Order is the order aggregate: header fields, immutable line snapshots, and
// the single mutable field, Status. Orders are never deleted.
type Order struct {
	ID              int64
	Code            string
	UserID          int64
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	PhoneNumber     string
	PaymentMethod   string
	Notes           string
	Total           decimal.Decimal
	Lines           []Line
	Status          Status
	CreatedAt       time.Time
}

// Repository defines persistence operations for orders.
//
// NextID must be a single atomic increment (a database sequence); allocating
// by reading the current maximum is a race under concurrent creation.
type Repository interface {
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)

	// UpdateStatus persists the new status only if the stored status still
	// equals from, returning ErrStatusConflict otherwise. This keeps
	// transitions on the same order serialized.
	UpdateStatus(ctx context.Context, id int64, from, to Status) error

	// ListByUser returns the user's orders newest-first.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)

	// ListAll returns every order newest-first.
	ListAll(ctx context.Context) ([]Order, error)
}
