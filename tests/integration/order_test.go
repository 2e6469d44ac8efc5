//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"testing"
	"time"
)

var orderCodePattern = regexp.MustCompile(`^#S\d{8}$`)

// createTestProduct provisions a dedicated product so stock assertions are
// not disturbed by other tests.
func createTestProduct(t *testing.T, admin string, stocks map[string]int) productResponse {
	t.Helper()

	resp := doJSON(t, http.MethodPost, "/api/admin/inventory", admin, map[string]any{
		"name":        fmt.Sprintf("Test Product %d", time.Now().UnixNano()),
		"brand":       "TestBrand",
		"category":    "test",
		"price":       "10.00",
		"size_stocks": stocks,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create product: expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[productResponse](t, resp)
}

func placeOrder(t *testing.T, token string, userID int64, p productResponse, size string, qty int) orderResponse {
	t.Helper()

	resp := doJSON(t, http.MethodPost, "/api/orders", token, orderRequest{
		UserID:          userID,
		CustomerName:    "Test Customer",
		ShippingAddress: "1 Main St",
		PhoneNumber:     "555-0101",
		TotalAmount:     fmt.Sprintf("%d", 10*qty),
		Items: []orderLine{
			{ProductID: p.ID, Name: p.Name, Size: size, Price: "10.00", Quantity: qty},
		},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("place order: expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[orderResponse](t, resp)
}

func transitionOrder(t *testing.T, admin string, orderID int64, status string) *http.Response {
	t.Helper()
	return doJSON(t, http.MethodPut, fmt.Sprintf("/api/orders/%d/status", orderID), admin,
		map[string]string{"status": status})
}

func productStock(t *testing.T, token string, id int64) int {
	t.Helper()

	resp := doGet(t, fmt.Sprintf("/api/products/%d", id), token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get product: expected 200, got %d", resp.StatusCode)
	}
	return decodeJSON[productResponse](t, resp).Stock
}

func TestPlaceOrder(t *testing.T) {
	admin := adminToken(t)
	userID, token := registerCustomer(t)
	p := createTestProduct(t, admin, map[string]int{"M": 10})

	o := placeOrder(t, token, userID, p, "M", 2)

	if o.Status != "Pending" {
		t.Errorf("status: got %q, want Pending", o.Status)
	}
	if !orderCodePattern.MatchString(o.Code) {
		t.Errorf("order code %q does not match %s", o.Code, orderCodePattern)
	}
	if len(o.Items) != 1 {
		t.Fatalf("items: got %d, want 1", len(o.Items))
	}

	// Placing an order reserves nothing; stock is untouched until delivery.
	if got := productStock(t, token, p.ID); got != 10 {
		t.Errorf("stock after order: got %d, want 10", got)
	}
}

// TestPlaceOrder_ConcurrentCreates races several creations and checks the
// sequence allocation holds up: every order gets its own id, and every code
// is derived from that id.
func TestPlaceOrder_ConcurrentCreates(t *testing.T) {
	admin := adminToken(t)
	userID, token := registerCustomer(t)
	p := createTestProduct(t, admin, map[string]int{"M": 100})

	const racers = 8
	type placed struct {
		order orderResponse
		err   error
	}
	results := make(chan placed, racers)

	for i := 0; i < racers; i++ {
		go func() {
			body, err := json.Marshal(orderRequest{
				UserID:          userID,
				CustomerName:    "Test Customer",
				ShippingAddress: "1 Main St",
				PhoneNumber:     "555-0101",
				TotalAmount:     "10",
				Items: []orderLine{
					{ProductID: p.ID, Name: p.Name, Size: "M", Price: "10.00", Quantity: 1},
				},
			})
			if err != nil {
				results <- placed{err: err}
				return
			}
			req, err := http.NewRequestWithContext(context.Background(),
				http.MethodPost, baseURL+"/api/orders", bytes.NewReader(body))
			if err != nil {
				results <- placed{err: err}
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := httpClient.Do(req)
			if err != nil {
				results <- placed{err: err}
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				results <- placed{err: fmt.Errorf("expected 201, got %d", resp.StatusCode)}
				return
			}
			var o orderResponse
			if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
				results <- placed{err: err}
				return
			}
			results <- placed{order: o}
		}()
	}

	ids := make(map[int64]bool, racers)
	codes := make(map[string]bool, racers)
	for i := 0; i < racers; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("concurrent create: %v", r.err)
		}
		o := r.order
		if ids[o.ID] {
			t.Errorf("order id %d allocated twice", o.ID)
		}
		ids[o.ID] = true
		if codes[o.Code] {
			t.Errorf("order code %q allocated twice", o.Code)
		}
		codes[o.Code] = true
		if !orderCodePattern.MatchString(o.Code) {
			t.Errorf("order code %q does not match %s", o.Code, orderCodePattern)
		}
		if want := fmt.Sprintf("%04d", o.ID%10000); o.Code[len(o.Code)-4:] != want {
			t.Errorf("order code %q does not carry id %d", o.Code, o.ID)
		}
	}

	// Sequential creations keep allocating in creation order.
	first := placeOrder(t, token, userID, p, "M", 1)
	second := placeOrder(t, token, userID, p, "M", 1)
	if second.ID <= first.ID {
		t.Errorf("ids out of creation order: %d then %d", first.ID, second.ID)
	}
}

func TestPlaceOrder_NoAuth(t *testing.T) {
	resp := doJSON(t, http.MethodPost, "/api/orders", "", orderRequest{})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	userID, token := registerCustomer(t)

	resp := doJSON(t, http.MethodPost, "/api/orders", token, orderRequest{
		UserID:          userID,
		CustomerName:    "Test Customer",
		ShippingAddress: "1 Main St",
		PhoneNumber:     "555-0101",
		TotalAmount:     "0",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_TotalMismatch(t *testing.T) {
	admin := adminToken(t)
	userID, token := registerCustomer(t)
	p := createTestProduct(t, admin, map[string]int{"M": 10})

	resp := doJSON(t, http.MethodPost, "/api/orders", token, orderRequest{
		UserID:          userID,
		CustomerName:    "Test Customer",
		ShippingAddress: "1 Main St",
		PhoneNumber:     "555-0101",
		TotalAmount:     "99.99",
		Items: []orderLine{
			{ProductID: p.ID, Name: p.Name, Size: "M", Price: "10.00", Quantity: 1},
		},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOrderLifecycle(t *testing.T) {
	admin := adminToken(t)
	userID, token := registerCustomer(t)
	p := createTestProduct(t, admin, map[string]int{"M": 10})
	o := placeOrder(t, token, userID, p, "M", 3)

	for _, status := range []string{"Processing", "Shipped", "Delivered"} {
		resp := transitionOrder(t, admin, o.ID, status)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("transition to %s: expected 200, got %d", status, resp.StatusCode)
		}
		got := decodeJSON[orderResponse](t, resp)
		resp.Body.Close()
		if got.Status != status {
			t.Errorf("status: got %q, want %q", got.Status, status)
		}
	}

	// Delivery deducted stock exactly once.
	if got := productStock(t, token, p.ID); got != 7 {
		t.Errorf("stock after delivery: got %d, want 7", got)
	}

	// Repeating the terminal status is an idempotent no-op.
	resp := transitionOrder(t, admin, o.ID, "Delivered")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat delivered: expected 200, got %d", resp.StatusCode)
	}
	if got := productStock(t, token, p.ID); got != 7 {
		t.Errorf("stock after repeated delivery: got %d, want 7", got)
	}

	// Terminal states reject further movement.
	resp = transitionOrder(t, admin, o.ID, "Cancelled")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("delivered->cancelled: expected 400, got %d", resp.StatusCode)
	}
}

func TestOrderDelivery_InsufficientStock(t *testing.T) {
	admin := adminToken(t)
	userID, token := registerCustomer(t)
	p := createTestProduct(t, admin, map[string]int{"M": 2})
	o := placeOrder(t, token, userID, p, "M", 2)

	// Drain the stock out from under the pending order.
	resp := doJSON(t, http.MethodPut, "/api/admin/inventory/stock", admin, map[string]any{
		"productId": p.ID, "size": "M", "change": -1,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("adjust stock: expected 200, got %d", resp.StatusCode)
	}

	resp = transitionOrder(t, admin, o.ID, "Delivered")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Details["available"] == nil {
		t.Error("conflict details missing available stock")
	}

	// The order did not move and the remaining unit is intact.
	if got := productStock(t, token, p.ID); got != 1 {
		t.Errorf("stock: got %d, want 1", got)
	}
}

func TestOrderCancellation_KeepsStock(t *testing.T) {
	admin := adminToken(t)
	userID, token := registerCustomer(t)
	p := createTestProduct(t, admin, map[string]int{"M": 5})
	o := placeOrder(t, token, userID, p, "M", 5)

	resp := transitionOrder(t, admin, o.ID, "Cancelled")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.StatusCode)
	}

	if got := productStock(t, token, p.ID); got != 5 {
		t.Errorf("stock after cancel: got %d, want 5", got)
	}
}

func TestOrderHistory_Permissions(t *testing.T) {
	admin := adminToken(t)
	joID, joToken := registerCustomer(t)
	_, otherToken := registerCustomer(t)
	p := createTestProduct(t, admin, map[string]int{"M": 10})
	placeOrder(t, joToken, joID, p, "M", 1)

	resp := doGet(t, fmt.Sprintf("/api/orders/history/%d", joID), joToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("own history: expected 200, got %d", resp.StatusCode)
	}
	orders := decodeJSON[[]orderResponse](t, resp)
	resp.Body.Close()
	if len(orders) != 1 {
		t.Errorf("own history: got %d orders, want 1", len(orders))
	}

	// Another customer is denied, not told the history is empty or missing.
	resp = doGet(t, fmt.Sprintf("/api/orders/history/%d", joID), otherToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-identity history: expected 403, got %d", resp.StatusCode)
	}

	resp = doGet(t, fmt.Sprintf("/api/orders/history/%d", joID), admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin history: expected 200, got %d", resp.StatusCode)
	}
}

func TestStockAdjustment_ClampsAtZero(t *testing.T) {
	admin := adminToken(t)
	p := createTestProduct(t, admin, map[string]int{"M": 3, "L": 2})

	resp := doJSON(t, http.MethodPut, "/api/admin/inventory/stock", admin, map[string]any{
		"productId": p.ID, "size": "M", "change": -100,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	result := decodeJSON[struct {
		Stock int `json:"stock"`
	}](t, resp)
	if result.Stock != 2 {
		t.Errorf("aggregate after clamp: got %d, want 2", result.Stock)
	}
}
