package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/duyanhad/shop-api/internal/domain/order"
)

type createOrderRequest struct {
	UserID          int64            `json:"userId"`
	CustomerName    string           `json:"customerName"`
	ShippingAddress string           `json:"shippingAddress"`
	PhoneNumber     string           `json:"phoneNumber"`
	PaymentMethod   string           `json:"paymentMethod"`
	Notes           string           `json:"notes"`
	TotalAmount     decimal.Decimal  `json:"totalAmount"`
	Items           []orderLineInput `json:"items"`
}

type orderLineInput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"image_url"`
}

type orderResponse struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	UserID          int64           `json:"user_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	ShippingAddress string          `json:"shipping_address"`
	PhoneNumber     string          `json:"phone_number"`
	PaymentMethod   string          `json:"payment_method"`
	Notes           string          `json:"notes"`
	Total           decimal.Decimal `json:"total"`
	Items           []order.Line    `json:"items"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		Code:            o.Code,
		UserID:          o.UserID,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		ShippingAddress: o.ShippingAddress,
		PhoneNumber:     o.PhoneNumber,
		PaymentMethod:   o.PaymentMethod,
		Notes:           o.Notes,
		Total:           o.Total,
		Items:           o.Lines,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := identityFrom(ctx)
	if !ok {
		writeErrorMessage(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]order.Line, len(req.Items))
	for i, item := range req.Items {
		lines[i] = order.Line{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			Price:     item.Price,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		}
	}

	o, err := h.orders.Create(ctx, actor, order.CreateRequest{
		UserID:          req.UserID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   actor.Email,
		ShippingAddress: req.ShippingAddress,
		PhoneNumber:     req.PhoneNumber,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		Total:           req.TotalAmount,
		Lines:           lines,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := identityFrom(ctx)
	if !ok {
		writeErrorMessage(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	targetID, err := pathID(r, "userID")
	if err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid user id")
		return
	}

	orders, err := h.orders.History(ctx, actor, targetID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := identityFrom(ctx)
	if !ok {
		writeErrorMessage(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.orders.ListAll(ctx, actor)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, toOrderResponses(orders))
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := identityFrom(ctx)
	if !ok {
		writeErrorMessage(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req transitionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.Transition(ctx, actor, orderID, order.Status(req.Status))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, toOrderResponse(o))
}

func toOrderResponses(orders []order.Order) []orderResponse {
	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	return resp
}
