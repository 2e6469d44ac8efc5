package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duyanhad/shop-api/internal/domain/product"
)

const (
	productColumns = `id, name, brand, category, price, discount, description, image_url, created_at`

	listProductsSQL    = `SELECT ` + productColumns + ` FROM products ORDER BY id`
	listByBrandSQL     = `SELECT ` + productColumns + ` FROM products WHERE brand = $1 ORDER BY id`
	getProductByIDSQL  = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductsByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`
	listBrandsSQL      = `SELECT DISTINCT brand FROM products WHERE brand <> '' ORDER BY brand`

	getSizesSQL = `SELECT product_id, size, stock FROM product_sizes WHERE product_id = ANY($1)`

	insertProductSQL = `INSERT INTO products (name, brand, category, price, discount, description, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`

	updateProductSQL = `UPDATE products
		SET name = $2, brand = $3, category = $4, price = $5, discount = $6, description = $7, image_url = $8
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	upsertSizeSQL = `INSERT INTO product_sizes (product_id, size, stock) VALUES ($1, $2, $3)
		ON CONFLICT (product_id, size) DO UPDATE SET stock = EXCLUDED.stock`

	deleteSizesSQL = `DELETE FROM product_sizes WHERE product_id = $1 AND size <> ALL($2)`

	// Conditional decrement: touches the row only when it can satisfy the
	// requested quantity, so concurrent deductions serialize on the counter
	// and can never drive it negative.
	deductSizeSQL = `UPDATE product_sizes SET stock = stock - $3
		WHERE product_id = $1 AND size = $2 AND stock >= $3`

	// Clamped adjustment for manual corrections. The row is created on first
	// adjustment of a previously untracked size.
	adjustSizeSQL = `INSERT INTO product_sizes (product_id, size, stock) VALUES ($1, $2, GREATEST(0, $3))
		ON CONFLICT (product_id, size) DO UPDATE SET stock = GREATEST(0, product_sizes.stock + $3)`

	// The aggregate column is a derived cache: it is only ever written as the
	// sum of the size counters, inside the same transaction that changed them.
	refreshAggregateSQL = `UPDATE products
		SET stock = (SELECT COALESCE(SUM(stock), 0) FROM product_sizes WHERE product_id = $1)
		WHERE id = $1
		RETURNING stock`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns catalog products ordered by id, optionally filtered by brand.
func (r *ProductRepository) List(ctx context.Context, brand string) ([]product.Product, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if brand == "" {
		rows, err = r.pool.Query(ctx, listProductsSQL)
	} else {
		rows, err = r.pool.Query(ctx, listByBrandSQL, brand)
	}
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	if err := r.attachSizes(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	ps := []product.Product{p}
	if err := r.attachSizes(ctx, ps); err != nil {
		return nil, err
	}
	return &ps[0], nil
}

// GetByIDs returns products matching any of the given ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	if err := r.attachSizes(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// Brands returns the distinct non-empty brand names.
func (r *ProductRepository) Brands(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listBrandsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing brands: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var b string
		err := row.Scan(&b)
		return b, err
	})
}

// Create persists a new product and its size counters.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertProductSQL,
			p.Name, p.Brand, p.Category, p.Price, p.Discount, p.Description, p.ImageURL,
		).Scan(&p.ID, &p.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting product: %w", err)
		}
		return r.writeSizes(ctx, tx, p)
	})
}

// Update rewrites the product header and replaces its size counters.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateProductSQL,
			p.ID, p.Name, p.Brand, p.Category, p.Price, p.Discount, p.Description, p.ImageURL,
		)
		if err != nil {
			return fmt.Errorf("updating product %d: %w", p.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return product.ErrNotFound
		}
		return r.writeSizes(ctx, tx, p)
	})
}

// writeSizes upserts the product's size counters, removes counters for sizes
// no longer present, and refreshes the derived aggregate.
func (r *ProductRepository) writeSizes(ctx context.Context, tx pgx.Tx, p *product.Product) error {
	sizes := p.SizeStocks
	if len(sizes) == 0 {
		sizes = map[string]int{product.DefaultSize: 0}
	}

	keep := make([]string, 0, len(sizes))
	for size, stock := range sizes {
		if _, err := tx.Exec(ctx, upsertSizeSQL, p.ID, size, stock); err != nil {
			return fmt.Errorf("writing size %q for product %d: %w", size, p.ID, err)
		}
		keep = append(keep, size)
	}
	if _, err := tx.Exec(ctx, deleteSizesSQL, p.ID, keep); err != nil {
		return fmt.Errorf("pruning sizes for product %d: %w", p.ID, err)
	}
	if err := tx.QueryRow(ctx, refreshAggregateSQL, p.ID).Scan(new(int)); err != nil {
		return fmt.Errorf("refreshing aggregate for product %d: %w", p.ID, err)
	}
	return nil
}

// Delete removes a product; size counters go with it via cascade.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// AdjustStock applies a clamped delta to one counter and returns the
// product's new aggregate stock.
func (r *ProductRepository) AdjustStock(ctx context.Context, id int64, size string, delta int) (int, error) {
	var newStock int
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
			return fmt.Errorf("checking product %d: %w", id, err)
		}
		if !exists {
			return product.ErrNotFound
		}

		if _, err := tx.Exec(ctx, adjustSizeSQL, id, size, delta); err != nil {
			return fmt.Errorf("adjusting product %d size %q: %w", id, size, err)
		}
		if err := tx.QueryRow(ctx, refreshAggregateSQL, id).Scan(&newStock); err != nil {
			return fmt.Errorf("refreshing aggregate for product %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newStock, nil
}

// attachSizes loads the size counters for every product in the slice.
func (r *ProductRepository) attachSizes(ctx context.Context, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]int64, len(products))
	index := make(map[int64]*product.Product, len(products))
	for i := range products {
		ids[i] = products[i].ID
		index[products[i].ID] = &products[i]
		products[i].SizeStocks = make(map[string]int)
	}

	rows, err := r.pool.Query(ctx, getSizesSQL, ids)
	if err != nil {
		return fmt.Errorf("loading size stocks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID int64
			size      string
			stock     int
		)
		if err := rows.Scan(&productID, &size, &stock); err != nil {
			return fmt.Errorf("scanning size stock: %w", err)
		}
		if p, ok := index[productID]; ok {
			p.SizeStocks[size] = stock
		}
	}
	return rows.Err()
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Brand, &p.Category, &p.Price, &p.Discount,
		&p.Description, &p.ImageURL, &p.CreatedAt,
	)
	return p, err
}
