package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/duyanhad/shop-api/internal/domain/product"
)

// productResponse is the wire form of a catalog product. Stock is the derived
// aggregate; size_stocks is the canonical per-size breakdown.
type productResponse struct {
	ID          int64           `json:"id"`
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

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Brand:       p.Brand,
		Category:    p.Category,
		Price:       p.Price,
		Discount:    p.Discount,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Sizes:       p.Sizes(),
		SizeStocks:  p.SizeStocks,
		Stock:       p.TotalStock(),
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.products.List(ctx, r.URL.Query().Get("brand"))
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

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "productID")
	if err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.products.GetByID(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) listBrands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	brands, err := h.products.Brands(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, brands)
}

// pathID parses a positive integer chi path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
