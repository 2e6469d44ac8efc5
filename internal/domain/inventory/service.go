package inventory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/duyanhad/shop-api/internal/domain/order"
	"github.com/duyanhad/shop-api/internal/domain/product"
	"github.com/duyanhad/shop-api/internal/event"
)

// Committer atomically records an order's status transition together with the
// stock deductions for its lines. On any error nothing is written: a lost
// status race (order.ErrStatusConflict) rolls the deductions back, and an
// unsatisfiable deduction (product.ErrStockConflict) rolls the status back.
type Committer interface {
	CommitFulfillment(ctx context.Context, orderID int64, from, to order.Status, deductions []product.Deduction) error
}

// Service reconciles stock against fulfilled demand. Fulfill implements the
// two-phase validate-then-commit protocol for a single order transition;
// Adjust applies clamped manual corrections.
type Service struct {
	products product.Repository
	commits  Committer
	events   event.Bus
}

// NewService creates an inventory Service.
func NewService(products product.Repository, commits Committer, events event.Bus) *Service {
	return &Service{
		products: products,
		commits:  commits,
		events:   events,
	}
}

var _ order.Reconciler = (*Service)(nil)

// demand is total requested quantity for one stock counter. Lines that hit
// the same counter are summed before validation, so an order cannot pass by
// splitting an oversized quantity across duplicate lines.
type demand struct {
	productID int64
	size      string
	name      string // snapshot name from the first line, for error reporting
	quantity  int
}

type counterKey struct {
	productID int64
	size      string
}

func aggregate(lines []order.Line) []demand {
	index := make(map[counterKey]int, len(lines))
	demands := make([]demand, 0, len(lines))
	for _, line := range lines {
		key := counterKey{line.ProductID, line.Size}
		if i, ok := index[key]; ok {
			demands[i].quantity += line.Quantity
			continue
		}
		index[key] = len(demands)
		demands = append(demands, demand{
			productID: line.ProductID,
			size:      line.Size,
			name:      line.Name,
			quantity:  line.Quantity,
		})
	}
	return demands
}

// Fulfill deducts stock for every order line and records the order's status
// transition, exactly once per fulfillment.
//
// Phase one validates the aggregated demand against a snapshot read: a
// missing product or an unsatisfiable quantity aborts the whole call with a
// typed error and no state change. Phase two hands the batch to the
// committer, which decrements each counter with a conditional update and
// applies the order's status compare-and-set inside one transaction. Losing
// either race rolls back everything: a stale counter surfaces as
// InsufficientStockError re-read from current state, a concurrent transition
// as order.ErrStatusConflict with no stock deducted.
func (s *Service) Fulfill(ctx context.Context, o *order.Order, target order.Status) error {
	demands := aggregate(o.Lines)

	ids := make([]int64, 0, len(demands))
	seen := make(map[int64]struct{}, len(demands))
	for _, d := range demands {
		if _, dup := seen[d.productID]; dup {
			continue
		}
		seen[d.productID] = struct{}{}
		ids = append(ids, d.productID)
	}

	var deductions []product.Deduction
	if len(demands) > 0 {
		fetched, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "get products")
		}
		byID := make(map[int64]*product.Product, len(fetched))
		for i := range fetched {
			byID[fetched[i].ID] = &fetched[i]
		}

		// Validate: every counter must satisfy its total demand before
		// anything is written.
		deductions = make([]product.Deduction, len(demands))
		for i, d := range demands {
			p, ok := byID[d.productID]
			if !ok {
				return &MissingProductError{ProductID: d.productID, Name: d.name}
			}
			if available := p.Available(d.size); available < d.quantity {
				return &InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Size:        d.size,
					Requested:   d.quantity,
					Available:   available,
				}
			}
			deductions[i] = product.Deduction{
				ProductID: d.productID,
				Size:      d.size,
				Quantity:  d.quantity,
			}
		}
	}

	// Commit: conditional decrements and the status compare-and-set, all or
	// nothing.
	if err := s.commits.CommitFulfillment(ctx, o.ID, o.Status, target, deductions); err != nil {
		if errors.Is(err, order.ErrStatusConflict) || errors.Is(err, order.ErrNotFound) {
			return err
		}
		if conflict := s.explainConflict(ctx, err, demands); conflict != nil {
			return conflict
		}
		return errors.Wrap(err, "commit fulfillment")
	}

	// The batch committed; report each product's new aggregate.
	s.emitChanged(ctx, ids)
	return nil
}

// explainConflict turns a stock conflict from the commit phase into the same
// typed error the validation phase produces, by re-reading current state. It
// returns nil when err is not a stock conflict.
func (s *Service) explainConflict(ctx context.Context, err error, demands []demand) error {
	if !errors.Is(err, product.ErrStockConflict) {
		return nil
	}
	for _, d := range demands {
		p, getErr := s.products.GetByID(ctx, d.productID)
		if getErr != nil {
			if errors.Is(getErr, product.ErrNotFound) {
				return &MissingProductError{ProductID: d.productID, Name: d.name}
			}
			continue
		}
		if available := p.Available(d.size); available < d.quantity {
			return &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Size:        d.size,
				Requested:   d.quantity,
				Available:   available,
			}
		}
	}
	// Conflict without a visible shortfall; report the first counter.
	return &InsufficientStockError{
		ProductID: demands[0].productID, ProductName: demands[0].name,
		Size: demands[0].size, Requested: demands[0].quantity,
	}
}

func (s *Service) emitChanged(ctx context.Context, ids []int64) {
	for _, id := range ids {
		p, err := s.products.GetByID(ctx, id)
		if err != nil {
			continue
		}
		s.events.Broadcast(ctx, event.InventoryChanged{ProductID: id, NewStock: p.TotalStock()})
	}
}

// Remove deletes a product from the catalog and reports its stock as gone.
// Existing order lines keep their snapshots; only live inventory changes.
func (s *Service) Remove(ctx context.Context, productID int64) error {
	if err := s.products.Delete(ctx, productID); err != nil {
		return err
	}
	s.events.Broadcast(ctx, event.InventoryChanged{ProductID: productID, NewStock: 0})
	return nil
}

// Adjust applies a signed delta to a stock counter, clamping at zero instead
// of failing, and returns the product's new aggregate stock. A zero delta is
// a harmless no-op: it reports the current aggregate without announcing a
// change.
func (s *Service) Adjust(ctx context.Context, productID int64, size string, delta int) (int, error) {
	newStock, err := s.products.AdjustStock(ctx, productID, size, delta)
	if err != nil {
		return 0, err
	}

	if delta != 0 {
		s.events.Broadcast(ctx, event.InventoryChanged{ProductID: productID, NewStock: newStock})
	}
	return newStock, nil
}
