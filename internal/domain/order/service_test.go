package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/duyanhad/shop-api/internal/domain/auth"
	"github.com/duyanhad/shop-api/internal/domain/user"
	"github.com/duyanhad/shop-api/internal/event"
)

type mockOrderRepo struct {
	mu sync.Mutex

	nextID    int64
	nextIDErr error

	created    *Order
	createdAll []*Order
	createErr  error

	byID   map[int64]*Order
	getErr error

	updatedFrom Status
	updatedTo   Status
	updateErr   error
	updateCalls int

	listByUser []Order
	listAll    []Order
}

func (m *mockOrderRepo) NextID(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextIDErr != nil {
		return 0, m.nextIDErr
	}
	m.nextID++
	return m.nextID, nil
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.created = o
	m.createdAll = append(m.createdAll, o)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id int64, from, to Status) error {
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updatedFrom, m.updatedTo = from, to
	if o, ok := m.byID[id]; ok {
		o.Status = to
	}
	return nil
}

func (m *mockOrderRepo) ListByUser(context.Context, int64) ([]Order, error) {
	return m.listByUser, nil
}

func (m *mockOrderRepo) ListAll(context.Context) ([]Order, error) {
	return m.listAll, nil
}

// mockReconciler models the atomic fulfillment commit: it records the
// fulfilled lines and, when wired to a repo, applies the status
// compare-and-set through it. committed only grows when that write succeeds,
// so a failed commit is observable as untouched state.
type mockReconciler struct {
	err       error
	calls     int
	committed int
	lines     []Line
	target    Status
	repo      *mockOrderRepo
}

func (m *mockReconciler) Fulfill(ctx context.Context, o *Order, target Status) error {
	m.calls++
	m.lines = o.Lines
	m.target = target
	if m.err != nil {
		return m.err
	}
	if m.repo != nil {
		if err := m.repo.UpdateStatus(ctx, o.ID, o.Status, target); err != nil {
			return err
		}
	}
	m.committed++
	return nil
}

// recordBus captures emitted events synchronously.
type recordBus struct {
	broadcasts []event.Event
	notified   map[int64][]event.Event
}

func newRecordBus() *recordBus {
	return &recordBus{notified: make(map[int64][]event.Event)}
}

func (b *recordBus) Broadcast(_ context.Context, e event.Event) {
	b.broadcasts = append(b.broadcasts, e)
}

func (b *recordBus) Notify(_ context.Context, userID int64, e event.Event) {
	b.notified[userID] = append(b.notified[userID], e)
}

var (
	customer = auth.Identity{UserID: 7, Email: "jo@example.com", Role: user.RoleCustomer}
	admin    = auth.Identity{UserID: 1, Email: "admin@example.com", Role: user.RoleAdmin}
)

func validCreateRequest() CreateRequest {
	return CreateRequest{
		UserID:          7,
		CustomerName:    "Jo Smith",
		ShippingAddress: "1 Main St",
		PhoneNumber:     "555-0101",
		Total:           decimal.RequireFromString("59.97"),
		Lines: []Line{
			{ProductID: 11, Name: "Classic Crew Tee", Size: "M", Price: decimal.RequireFromString("14.99"), Quantity: 3},
			{ProductID: 12, Name: "Canvas Tote", Price: decimal.RequireFromString("15.00"), Quantity: 1},
		},
	}
}

func newTestService(repo *mockOrderRepo, stock *mockReconciler, bus event.Bus) *Service {
	svc := NewService(repo, stock, bus)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	}
	return svc
}

func TestService_Create(t *testing.T) {
	t.Run("creates pending order with derived code", func(t *testing.T) {
		repo := &mockOrderRepo{nextID: 16}
		bus := newRecordBus()
		svc := newTestService(repo, &mockReconciler{}, bus)

		o, err := svc.Create(context.Background(), customer, validCreateRequest())
		require.NoError(t, err)

		assert.Equal(t, int64(17), o.ID)
		assert.Equal(t, "#S20260017", o.Code)
		assert.Equal(t, StatusPending, o.Status)
		assert.Equal(t, "COD", o.PaymentMethod)
		assert.Equal(t, int64(7), o.UserID)
		require.NotNil(t, repo.created)
		assert.Equal(t, o, repo.created)

		require.Len(t, bus.broadcasts, 1)
		created, ok := bus.broadcasts[0].(event.OrderCreated)
		require.True(t, ok)
		assert.Equal(t, int64(17), created.OrderID)
		assert.Equal(t, "#S20260017", created.Code)
		require.Len(t, bus.notified[7], 1)
	})

	t.Run("keeps explicit payment method", func(t *testing.T) {
		repo := &mockOrderRepo{}
		svc := newTestService(repo, &mockReconciler{}, newRecordBus())

		req := validCreateRequest()
		req.PaymentMethod = "CARD"
		o, err := svc.Create(context.Background(), customer, req)
		require.NoError(t, err)
		assert.Equal(t, "CARD", o.PaymentMethod)
	})

	t.Run("rejects creating for another user", func(t *testing.T) {
		svc := newTestService(&mockOrderRepo{}, &mockReconciler{}, newRecordBus())

		req := validCreateRequest()
		req.UserID = 99
		_, err := svc.Create(context.Background(), customer, req)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("rejects empty items", func(t *testing.T) {
		svc := newTestService(&mockOrderRepo{}, &mockReconciler{}, newRecordBus())

		req := validCreateRequest()
		req.Lines = nil
		_, err := svc.Create(context.Background(), customer, req)
		assert.ErrorIs(t, err, ErrEmptyItems)
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		svc := newTestService(&mockOrderRepo{}, &mockReconciler{}, newRecordBus())

		req := validCreateRequest()
		req.Lines[0].Quantity = 0
		_, err := svc.Create(context.Background(), customer, req)

		var qtyErr *InvalidQuantityError
		require.ErrorAs(t, err, &qtyErr)
		assert.Equal(t, int64(11), qtyErr.ProductID)
	})

	t.Run("rejects total that does not match line sum", func(t *testing.T) {
		svc := newTestService(&mockOrderRepo{}, &mockReconciler{}, newRecordBus())

		req := validCreateRequest()
		req.Total = decimal.RequireFromString("60.00")
		_, err := svc.Create(context.Background(), customer, req)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "totalAmount", vErr.Field)
	})

	t.Run("rejects missing contact fields", func(t *testing.T) {
		svc := newTestService(&mockOrderRepo{}, &mockReconciler{}, newRecordBus())

		for _, field := range []string{"customerName", "shippingAddress", "phoneNumber"} {
			req := validCreateRequest()
			switch field {
			case "customerName":
				req.CustomerName = "  "
			case "shippingAddress":
				req.ShippingAddress = ""
			case "phoneNumber":
				req.PhoneNumber = ""
			}
			_, err := svc.Create(context.Background(), customer, req)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr, field)
			assert.Equal(t, field, vErr.Field)
		}
	})

	t.Run("concurrent creates allocate distinct ids with matching codes", func(t *testing.T) {
		const racers = 16
		repo := &mockOrderRepo{}
		svc := newTestService(repo, &mockReconciler{}, event.Nop{})

		var g errgroup.Group
		for i := 0; i < racers; i++ {
			g.Go(func() error {
				_, err := svc.Create(context.Background(), customer, validCreateRequest())
				return err
			})
		}
		require.NoError(t, g.Wait())

		require.Len(t, repo.createdAll, racers)
		seen := make(map[int64]bool, racers)
		for _, o := range repo.createdAll {
			assert.False(t, seen[o.ID], "id %d allocated twice", o.ID)
			seen[o.ID] = true
			assert.GreaterOrEqual(t, o.ID, int64(1))
			assert.LessOrEqual(t, o.ID, int64(racers))
			assert.Equal(t, Code(2026, o.ID), o.Code)
		}
	})

	t.Run("no event on persistence failure", func(t *testing.T) {
		repo := &mockOrderRepo{createErr: errors.New("db down")}
		bus := newRecordBus()
		svc := newTestService(repo, &mockReconciler{}, bus)

		_, err := svc.Create(context.Background(), customer, validCreateRequest())
		require.Error(t, err)
		assert.Empty(t, bus.broadcasts)
	})
}

func TestCode(t *testing.T) {
	assert.Equal(t, "#S20260017", Code(2026, 17))
	assert.Equal(t, "#S20260001", Code(2026, 1))
	assert.Equal(t, "#S20251234", Code(2025, 1234))
	// The sequential id wraps into four digits.
	assert.Equal(t, "#S20262345", Code(2026, 12345))
	assert.Equal(t, "#S20260000", Code(2026, 10000))
}

func TestService_Transition(t *testing.T) {
	orderAt := func(status Status) *mockOrderRepo {
		return &mockOrderRepo{
			byID: map[int64]*Order{
				42: {
					ID:     42,
					UserID: 7,
					Status: status,
					Lines: []Line{
						{ProductID: 11, Size: "M", Price: decimal.RequireFromString("14.99"), Quantity: 2},
					},
				},
			},
		}
	}

	t.Run("requires admin", func(t *testing.T) {
		svc := newTestService(orderAt(StatusPending), &mockReconciler{}, newRecordBus())

		_, err := svc.Transition(context.Background(), customer, 42, StatusProcessing)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		svc := newTestService(orderAt(StatusPending), &mockReconciler{}, newRecordBus())

		_, err := svc.Transition(context.Background(), admin, 42, Status("Refunded"))
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("unknown order", func(t *testing.T) {
		svc := newTestService(&mockOrderRepo{byID: map[int64]*Order{}}, &mockReconciler{}, newRecordBus())

		_, err := svc.Transition(context.Background(), admin, 404, StatusProcessing)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("same status is an idempotent no-op", func(t *testing.T) {
		repo := orderAt(StatusShipped)
		stock := &mockReconciler{}
		bus := newRecordBus()
		svc := newTestService(repo, stock, bus)

		o, err := svc.Transition(context.Background(), admin, 42, StatusShipped)
		require.NoError(t, err)
		assert.Equal(t, StatusShipped, o.Status)
		assert.Zero(t, repo.updateCalls)
		assert.Zero(t, stock.calls)
		assert.Empty(t, bus.broadcasts)
	})

	t.Run("no-op applies even in terminal states", func(t *testing.T) {
		repo := orderAt(StatusDelivered)
		stock := &mockReconciler{}
		svc := newTestService(repo, stock, newRecordBus())

		o, err := svc.Transition(context.Background(), admin, 42, StatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, StatusDelivered, o.Status)
		// Stock was already deducted on the first entry into Delivered.
		assert.Zero(t, stock.calls)
	})

	t.Run("illegal transition", func(t *testing.T) {
		svc := newTestService(orderAt(StatusCancelled), &mockReconciler{}, newRecordBus())

		_, err := svc.Transition(context.Background(), admin, 42, StatusShipped)

		var trErr *InvalidTransitionError
		require.ErrorAs(t, err, &trErr)
		assert.Equal(t, StatusCancelled, trErr.From)
		assert.Equal(t, StatusShipped, trErr.To)
	})

	t.Run("legal transition persists and emits", func(t *testing.T) {
		repo := orderAt(StatusPending)
		stock := &mockReconciler{}
		bus := newRecordBus()
		svc := newTestService(repo, stock, bus)

		o, err := svc.Transition(context.Background(), admin, 42, StatusProcessing)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, o.Status)
		assert.Equal(t, StatusPending, repo.updatedFrom)
		assert.Equal(t, StatusProcessing, repo.updatedTo)
		assert.Zero(t, stock.calls)

		require.Len(t, bus.broadcasts, 1)
		changed, ok := bus.broadcasts[0].(event.OrderStatusChanged)
		require.True(t, ok)
		assert.Equal(t, "Processing", changed.NewStatus)
		require.Len(t, bus.notified[7], 1)
	})

	t.Run("delivered commits reconciliation and status as one unit", func(t *testing.T) {
		repo := orderAt(StatusShipped)
		stock := &mockReconciler{repo: repo}
		svc := newTestService(repo, stock, newRecordBus())

		o, err := svc.Transition(context.Background(), admin, 42, StatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, StatusDelivered, o.Status)
		assert.Equal(t, 1, stock.calls)
		assert.Equal(t, 1, stock.committed)
		assert.Equal(t, StatusDelivered, stock.target)
		require.Len(t, stock.lines, 1)
		assert.Equal(t, int64(11), stock.lines[0].ProductID)
		// The service made no status write of its own; the reconciler's
		// single commit carried it.
		assert.Equal(t, 1, repo.updateCalls)
		assert.Equal(t, StatusDelivered, repo.byID[42].Status)
	})

	t.Run("reconciliation failure leaves order untouched", func(t *testing.T) {
		repo := orderAt(StatusShipped)
		stock := &mockReconciler{err: errors.New("insufficient stock")}
		bus := newRecordBus()
		svc := newTestService(repo, stock, bus)

		_, err := svc.Transition(context.Background(), admin, 42, StatusDelivered)
		require.Error(t, err)
		assert.Zero(t, repo.updateCalls)
		assert.Equal(t, StatusShipped, repo.byID[42].Status)
		assert.Empty(t, bus.broadcasts)
	})

	t.Run("losing the delivered race commits no stock", func(t *testing.T) {
		repo := orderAt(StatusShipped)
		repo.updateErr = ErrStatusConflict
		stock := &mockReconciler{repo: repo}
		bus := newRecordBus()
		svc := newTestService(repo, stock, bus)

		_, err := svc.Transition(context.Background(), admin, 42, StatusDelivered)
		require.ErrorIs(t, err, ErrStatusConflict)
		assert.Zero(t, stock.committed, "stock must be unchanged when the transition fails")
		assert.Equal(t, StatusShipped, repo.byID[42].Status)
		assert.Empty(t, bus.broadcasts)
	})

	t.Run("cancellation never touches stock", func(t *testing.T) {
		repo := orderAt(StatusShipped)
		stock := &mockReconciler{}
		svc := newTestService(repo, stock, newRecordBus())

		o, err := svc.Transition(context.Background(), admin, 42, StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, o.Status)
		assert.Zero(t, stock.calls)
	})

	t.Run("concurrent writer surfaces status conflict", func(t *testing.T) {
		repo := orderAt(StatusPending)
		repo.updateErr = ErrStatusConflict
		svc := newTestService(repo, &mockReconciler{}, newRecordBus())

		_, err := svc.Transition(context.Background(), admin, 42, StatusProcessing)
		assert.ErrorIs(t, err, ErrStatusConflict)
	})
}

func TestService_History(t *testing.T) {
	repo := &mockOrderRepo{
		listByUser: []Order{{ID: 3, UserID: 7}, {ID: 1, UserID: 7}},
	}
	svc := newTestService(repo, &mockReconciler{}, newRecordBus())

	t.Run("own history", func(t *testing.T) {
		got, err := svc.History(context.Background(), customer, 7)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("admin may query any user", func(t *testing.T) {
		_, err := svc.History(context.Background(), admin, 7)
		require.NoError(t, err)
	})

	t.Run("cross-identity access is denied, not hidden as missing", func(t *testing.T) {
		_, err := svc.History(context.Background(), customer, 8)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestService_ListAll(t *testing.T) {
	repo := &mockOrderRepo{listAll: []Order{{ID: 2}, {ID: 1}}}
	svc := newTestService(repo, &mockReconciler{}, newRecordBus())

	got, err := svc.ListAll(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = svc.ListAll(context.Background(), customer)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
