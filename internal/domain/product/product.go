package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// DefaultSize is the size key used for products that do not track stock per
// size. Every product has at least this one counter.
const DefaultSize = ""

// Product represents a catalog item available for purchase.
//
// Stock is tracked canonically in SizeStocks, one counter per size. The
// aggregate quantity is always derived from the map (see TotalStock); it is
// never an independently maintained number.
type Product struct {
	ID          int64
	Name        string
	Brand       string
	Category    string
	Price       decimal.Decimal
	Discount    int // percent, 0-100
	Description string
	ImageURL    string
	SizeStocks  map[string]int
	CreatedAt   time.Time
}

// TotalStock returns the aggregate stock across all sizes.
func (p *Product) TotalStock() int {
	total := 0
	for _, n := range p.SizeStocks {
		total += n
	}
	return total
}

// Available returns the stock counter for the given size. Unsized products
// keep their whole stock under DefaultSize, so the lookup doubles as the
// aggregate for them.
func (p *Product) Available(size string) int {
	return p.SizeStocks[size]
}

// Sizes returns the tracked size keys, excluding the default counter.
func (p *Product) Sizes() []string {
	sizes := make([]string, 0, len(p.SizeStocks))
	for s := range p.SizeStocks {
		if s != DefaultSize {
			sizes = append(sizes, s)
		}
	}
	return sizes
}

// Deduction describes a single conditional stock decrement. Batches of
// deductions are committed by the fulfillment store, atomically with the
// owning order's status transition.
type Deduction struct {
	ProductID int64
	Size      string
	Quantity  int
}

// Repository defines persistence operations for the product catalog.
//
// Stock mutations go exclusively through AdjustStock and the fulfillment
// commit, which implementations must perform as atomic conditional updates.
// Direct writes to stock counters are not part of the contract.
type Repository interface {
	List(ctx context.Context, brand string) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Brands(ctx context.Context) ([]string, error)

	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id int64) error

	// AdjustStock clamps the counter at zero (newStock = max(0, old+delta))
	// and returns the product's new aggregate stock.
	AdjustStock(ctx context.Context, id int64, size string, delta int) (int, error)
}

// ErrStockConflict is returned by the fulfillment commit when a conditional
// decrement matches no row: either the counter dropped below the requested
// quantity after validation, or the product disappeared.
var ErrStockConflict = errors.New("stock conflict")
