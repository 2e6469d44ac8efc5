// Package handler exposes the domain services over HTTP with chi routing.
// It owns the JSON wire formats and the mapping from domain errors to HTTP
// status codes; no storage detail leaks through its responses.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/duyanhad/shop-api/internal/domain/auth"
	"github.com/duyanhad/shop-api/internal/domain/inventory"
	"github.com/duyanhad/shop-api/internal/domain/order"
	"github.com/duyanhad/shop-api/internal/domain/product"
	"github.com/duyanhad/shop-api/internal/domain/user"
)

const maxBodySize = 64 * 1024

// Handler carries the service dependencies for all HTTP endpoints.
type Handler struct {
	auth      *auth.Service
	users     user.Repository
	products  product.Repository
	orders    *order.Service
	inventory *inventory.Service
}

// New constructs a Handler.
func New(
	authSvc *auth.Service,
	users user.Repository,
	products product.Repository,
	orders *order.Service,
	inv *inventory.Service,
) *Handler {
	return &Handler{
		auth:      authSvc,
		users:     users,
		products:  products,
		orders:    orders,
		inventory: inv,
	}
}

// Routes registers all endpoints on a new chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)
		r.Get("/brands", h.listBrands)

		r.Post("/orders", h.createOrder)
		r.Get("/orders/history/{userID}", h.orderHistory)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Get("/orders", h.listOrders)
			r.Put("/orders/{orderID}/status", h.transitionOrder)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/users", h.listUsers)
				r.Put("/users/{userID}/block", h.blockUser)

				r.Get("/inventory", h.listInventory)
				r.Put("/inventory/stock", h.adjustStock)
				r.Post("/inventory", h.createProduct)
				r.Put("/inventory/{productID}", h.updateProduct)
				r.Delete("/inventory/{productID}", h.deleteProduct)
			})
		})
	})

	return r
}

// errorResponse is the canonical JSON error envelope.
type errorResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(ctx).Error("write response", zap.Error(err))
	}
}

func writeErrorMessage(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, status, errorResponse{Code: status, Message: message})
}

// writeError maps a domain error to its HTTP representation. Anything
// unrecognized is logged and reported as a generic server failure.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		insufficientErr *inventory.InsufficientStockError
		missingErr      *inventory.MissingProductError
		validationErr   *order.ValidationError
		quantityErr     *order.InvalidQuantityError
		transitionErr   *order.InvalidTransitionError
	)

	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredential):
		writeErrorMessage(ctx, w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrBlocked):
		writeErrorMessage(ctx, w, http.StatusForbidden, "account blocked")
	case errors.Is(err, order.ErrPermissionDenied):
		writeErrorMessage(ctx, w, http.StatusForbidden, "permission denied")
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		writeErrorMessage(ctx, w, http.StatusNotFound, err.Error())
	case errors.Is(err, user.ErrEmailTaken):
		writeErrorMessage(ctx, w, http.StatusConflict, err.Error())
	case errors.As(err, &insufficientErr):
		writeJSON(ctx, w, http.StatusConflict, errorResponse{
			Code:    http.StatusConflict,
			Message: insufficientErr.Error(),
			Details: map[string]any{
				"product_id":   insufficientErr.ProductID,
				"product_name": insufficientErr.ProductName,
				"size":         insufficientErr.Size,
				"requested":    insufficientErr.Requested,
				"available":    insufficientErr.Available,
			},
		})
	case errors.As(err, &missingErr):
		writeErrorMessage(ctx, w, http.StatusConflict, missingErr.Error())
	case errors.Is(err, order.ErrStatusConflict):
		writeErrorMessage(ctx, w, http.StatusConflict, "order was modified concurrently, retry")
	case errors.As(err, &transitionErr):
		writeErrorMessage(ctx, w, http.StatusBadRequest, transitionErr.Error())
	case errors.Is(err, order.ErrInvalidStatus):
		writeErrorMessage(ctx, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrEmptyItems),
		errors.As(err, &validationErr),
		errors.As(err, &quantityErr):
		writeErrorMessage(ctx, w, http.StatusBadRequest, err.Error())
	default:
		zctx.From(ctx).Error("request failed", zap.Error(err))
		writeErrorMessage(ctx, w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody parses a JSON request body into dst with a size cap.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}
