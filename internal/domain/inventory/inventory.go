// Package inventory implements stock reconciliation for order fulfillment
// and manual stock adjustment.
package inventory

import "fmt"

// MissingProductError indicates an order line referencing a product that no
// longer exists in the catalog.
type MissingProductError struct {
	ProductID int64
	Name      string // snapshot name from the order line
}

func (e *MissingProductError) Error() string {
	return fmt.Sprintf("product %d (%s) no longer exists", e.ProductID, e.Name)
}

// InsufficientStockError names the first unsatisfiable order line: the
// product, the requested quantity, and what was actually available.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Size        string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	if e.Size != "" {
		return fmt.Sprintf("insufficient stock for %s (size %s): requested %d, available %d",
			e.ProductName, e.Size, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}
