package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duyanhad/shop-api/internal/domain/inventory"
	"github.com/duyanhad/shop-api/internal/domain/order"
	"github.com/duyanhad/shop-api/internal/domain/product"
)

var _ inventory.Committer = (*FulfillmentStore)(nil)

// FulfillmentStore commits order fulfillment: the order's status
// compare-and-set and the stock decrements for its lines run in a single
// transaction. Losing either race rolls back the whole commit, so a
// fulfillment can never deduct stock without recording the delivery, or the
// other way around.
type FulfillmentStore struct {
	pool *pgxpool.Pool
}

// NewFulfillmentStore returns a FulfillmentStore that uses the given pool.
func NewFulfillmentStore(pool *pgxpool.Pool) *FulfillmentStore {
	return &FulfillmentStore{pool: pool}
}

// CommitFulfillment claims the status transition with a compare-and-set,
// then applies each deduction with a conditional decrement and refreshes the
// derived aggregates, all inside one transaction.
//
// A missed compare-and-set surfaces as order.ErrStatusConflict (or
// order.ErrNotFound when the order vanished); a missed decrement as
// product.ErrStockConflict. Either rollback leaves both tables untouched.
func (s *FulfillmentStore) CommitFulfillment(ctx context.Context, orderID int64, from, to order.Status, deductions []product.Deduction) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderStatusSQL, orderID, from, to)
		if err != nil {
			return fmt.Errorf("updating order %d status: %w", orderID, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, orderExistsSQL, orderID).Scan(&exists); err != nil {
				return fmt.Errorf("checking order %d: %w", orderID, err)
			}
			if !exists {
				return order.ErrNotFound
			}
			return order.ErrStatusConflict
		}

		touched := make(map[int64]struct{}, len(deductions))
		for _, d := range deductions {
			tag, err := tx.Exec(ctx, deductSizeSQL, d.ProductID, d.Size, d.Quantity)
			if err != nil {
				return fmt.Errorf("deducting product %d size %q: %w", d.ProductID, d.Size, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("product %d size %q cannot satisfy quantity %d: %w",
					d.ProductID, d.Size, d.Quantity, product.ErrStockConflict)
			}
			touched[d.ProductID] = struct{}{}
		}

		for id := range touched {
			if err := tx.QueryRow(ctx, refreshAggregateSQL, id).Scan(new(int)); err != nil {
				return fmt.Errorf("refreshing aggregate for product %d: %w", id, err)
			}
		}
		return nil
	})
}
