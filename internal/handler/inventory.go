package handler

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/duyanhad/shop-api/internal/domain/product"
)

type productInput struct {
	Name        string          `json:"name"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Discount    int             `json:"discount"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Sizes       []string        `json:"sizes"`
	SizeStocks  map[string]int  `json:"size_stocks"`
	Stock       int             `json:"stock"`
}

// toProduct maps the input to a Product with a canonical size map. Explicit
// size_stocks win; otherwise listed sizes start at zero, and a plain stock
// number goes under the default size key.
func (in *productInput) toProduct() (*product.Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errProductName
	}
	if in.Price.IsNegative() {
		return nil, errProductPrice
	}
	if in.Discount < 0 || in.Discount > 100 {
		return nil, errProductDiscount
	}

	sizeStocks := make(map[string]int)
	switch {
	case len(in.SizeStocks) > 0:
		for size, stock := range in.SizeStocks {
			if stock < 0 {
				return nil, errProductStock
			}
			sizeStocks[size] = stock
		}
	case len(in.Sizes) > 0:
		for _, size := range in.Sizes {
			sizeStocks[strings.TrimSpace(size)] = 0
		}
	default:
		if in.Stock < 0 {
			return nil, errProductStock
		}
		sizeStocks[product.DefaultSize] = in.Stock
	}

	return &product.Product{
		Name:        strings.TrimSpace(in.Name),
		Brand:       strings.TrimSpace(in.Brand),
		Category:    strings.TrimSpace(in.Category),
		Price:       in.Price,
		Discount:    in.Discount,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		SizeStocks:  sizeStocks,
	}, nil
}

var (
	errProductName     = &inputError{"name must not be empty"}
	errProductPrice    = &inputError{"price must not be negative"}
	errProductDiscount = &inputError{"discount must be between 0 and 100"}
	errProductStock    = &inputError{"stock must not be negative"}
)

type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.products.List(ctx, "")
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i := range products {
		resp[i] = toProductResponse(&products[i])
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in productInput
	if err := decodeBody(w, r, &in); err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := in.toProduct()
	if err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.products.Create(ctx, p); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "productID")
	if err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid product id")
		return
	}

	var in productInput
	if err := decodeBody(w, r, &in); err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := in.toProduct()
	if err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	p.ID = id

	if err := h.products.Update(ctx, p); err != nil {
		writeError(ctx, w, err)
		return
	}

	updated, err := h.products.GetByID(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, toProductResponse(updated))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "productID")
	if err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.inventory.Remove(ctx, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

type adjustStockRequest struct {
	ProductID int64  `json:"productId"`
	Size      string `json:"size"`
	Change    int    `json:"change"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req adjustStockRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	newStock, err := h.inventory.Adjust(ctx, req.ProductID, req.Size, req.Change)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{
		"product_id": req.ProductID,
		"stock":      newStock,
	})
}
