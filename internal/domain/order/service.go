package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/duyanhad/shop-api/internal/domain/auth"
	"github.com/duyanhad/shop-api/internal/event"
)

// Reconciler commits an order's entry into a fulfilled status: the stock
// deductions for its lines and the status compare-and-set are one atomic
// unit. Implementations must be all-or-nothing: on error neither the order
// nor any stock has changed.
type Reconciler interface {
	Fulfill(ctx context.Context, o *Order, target Status) error
}

// ValidationError reports a rejected field in a create request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// CreateRequest holds the validated input for creating an order.
type CreateRequest struct {
	UserID          int64
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	PhoneNumber     string
	PaymentMethod   string
	Notes           string
	Total           decimal.Decimal
	Lines           []Line
}

// Service is the order lifecycle engine. It validates transitions,
// orchestrates inventory reconciliation on fulfillment, persists state, and
// emits notification events.
type Service struct {
	orders Repository
	stock  Reconciler
	events event.Bus
	now    func() time.Time
}

// NewService creates the lifecycle engine with its dependencies.
func NewService(orders Repository, stock Reconciler, events event.Bus) *Service {
	return &Service{
		orders: orders,
		stock:  stock,
		events: events,
		now:    time.Now,
	}
}

// Create validates the request, allocates the next sequential id, derives the
// human order code, persists the order as Pending, and emits OrderCreated.
//
// The stored lines and total are snapshots taken from the request; they are
// never recomputed against live catalog data, so later catalog edits do not
// alter existing orders.
func (s *Service) Create(ctx context.Context, actor auth.Identity, req CreateRequest) (*Order, error) {
	if req.UserID != actor.UserID {
		return nil, ErrPermissionDenied
	}
	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	id, err := s.orders.NextID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "allocate order id")
	}

	now := s.now()
	o := &Order{
		ID:              id,
		Code:            Code(now.Year(), id),
		UserID:          req.UserID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		ShippingAddress: req.ShippingAddress,
		PhoneNumber:     req.PhoneNumber,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		Total:           req.Total,
		Lines:           req.Lines,
		Status:          StatusPending,
		CreatedAt:       now,
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = "COD"
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	created := event.OrderCreated{
		OrderID:      o.ID,
		Code:         o.Code,
		CustomerName: o.CustomerName,
		Total:        o.Total,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
	}
	s.events.Broadcast(ctx, created)
	s.events.Notify(ctx, o.UserID, created)

	return o, nil
}

// Code derives the display order code from the creation year and sequential
// id, e.g. id 17 in 2026 becomes "#S20260017".
func Code(year int, id int64) string {
	return fmt.Sprintf("#S%d%04d", year, id%10000)
}

func validateCreate(req *CreateRequest) error {
	if len(req.Lines) == 0 {
		return ErrEmptyItems
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: line.ProductID}
		}
		if line.Price.IsNegative() {
			return &ValidationError{Field: "items", Reason: fmt.Sprintf("negative price for product %d", line.ProductID)}
		}
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return &ValidationError{Field: "customerName", Reason: "required"}
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return &ValidationError{Field: "shippingAddress", Reason: "required"}
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return &ValidationError{Field: "phoneNumber", Reason: "required"}
	}

	// The total is part of the creation-time invariant: it must equal the sum
	// of the line snapshots.
	sum := decimal.Zero
	for _, line := range req.Lines {
		sum = sum.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if !sum.Equal(req.Total) {
		return &ValidationError{
			Field:  "totalAmount",
			Reason: fmt.Sprintf("expected %s, got %s", sum, req.Total),
		}
	}
	return nil
}

// Transition moves an order to the target status.
//
// Only admins may transition orders. A transition to the current status is an
// idempotent no-op: it succeeds without re-running side effects, which makes
// retried calls safe. Entering Delivered commits inventory reconciliation and
// the status change as one atomic unit; on any failure both the order and all
// stock are exactly as they were.
func (s *Service) Transition(ctx context.Context, actor auth.Identity, orderID int64, target Status) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	if _, err := ParseStatus(string(target)); err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Status == target {
		return o, nil
	}
	if !o.Status.CanTransitionTo(target) {
		return nil, &InvalidTransitionError{From: o.Status, To: target}
	}

	// Deduction happens exactly once, on the first entry into Delivered.
	// The reconciler commits it together with the status compare-and-set, so
	// a concurrent transition that wins the race cannot leave an orphaned
	// deduction behind. Cancellations and intermediate states never touch
	// stock and persist through the plain compare-and-set.
	if target == StatusDelivered {
		if err := s.stock.Fulfill(ctx, o, target); err != nil {
			return nil, err
		}
	} else if err := s.orders.UpdateStatus(ctx, orderID, o.Status, target); err != nil {
		return nil, err
	}
	o.Status = target

	changed := event.OrderStatusChanged{OrderID: o.ID, NewStatus: string(target)}
	s.events.Broadcast(ctx, changed)
	s.events.Notify(ctx, o.UserID, changed)

	return o, nil
}

// History returns the target user's orders newest-first. Admins may query any
// user; everyone else only themselves. Cross-identity access fails with
// ErrPermissionDenied rather than ErrNotFound so it cannot be used to probe
// which users exist.
func (s *Service) History(ctx context.Context, actor auth.Identity, targetUserID int64) ([]Order, error) {
	if !actor.IsAdmin() && actor.UserID != targetUserID {
		return nil, ErrPermissionDenied
	}
	return s.orders.ListByUser(ctx, targetUserID)
}

// ListAll returns every order newest-first, for the admin console.
func (s *Service) ListAll(ctx context.Context, actor auth.Identity) ([]Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	return s.orders.ListAll(ctx)
}
