package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/logger"
	"orderdesk/backend/internal/service"
	"orderdesk/backend/internal/store/memory"
)

const testManagerPIN = "739154"

// newTestAPI wires a memory store, real AuthManager and real Service so
// handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{
		DefaultStoreID: memory.DefaultStoreID,
		Location:       time.FixedZone("KST", 9*60*60),
	})
	auth := NewAuthManager(context.Background(), "test-secret-key", time.Hour, testManagerPIN, repo, logger.Nop())

	return New(svc, auth, "*", logger.Nop())
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()

	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func americanoPayload(key string, qty int) domain.SubmitOrderRequest {
	return domain.SubmitOrderRequest{
		StoreID:        memory.DefaultStoreID,
		IdempotencyKey: key,
		PaymentMethod:  domain.PaymentCard,
		Items:          []domain.OrderItem{{MenuID: "menu-americano", Quantity: qty, UnitPrice: 4500}},
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleMenu_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/menu", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleMenu_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/menu?store_id=main-store", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.MenuListResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Menu) == 0 {
		t.Fatalf("expected seeded menu, got %+v", body)
	}
}

func TestSubmitOrderOverHTTPIsIdempotent(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	first := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, csrf, americanoPayload("idem-http-1", 2))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", first.Code, first.Body.String())
	}
	var created domain.OrderResponse
	if err := json.NewDecoder(first.Body).Decode(&created); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if created.Transaction.TotalAmount != 9000 {
		t.Fatalf("expected total 9000, got %d", created.Transaction.TotalAmount)
	}

	retry := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, csrf, americanoPayload("idem-http-1", 2))
	if retry.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", retry.Code)
	}
	var replayed domain.OrderResponse
	if err := json.NewDecoder(retry.Body).Decode(&replayed); err != nil {
		t.Fatalf("decode retry: %v", err)
	}
	if !replayed.Duplicate || replayed.Transaction.ID != created.Transaction.ID {
		t.Fatalf("expected duplicate of %s, got %+v", created.Transaction.ID, replayed)
	}

	lookup := doJSON(t, handler, http.MethodGet, "/api/v1/orders/idempotency/idem-http-1?store_id=main-store", token, "", nil)
	if lookup.Code != http.StatusOK || !strings.Contains(lookup.Body.String(), created.Transaction.ID) {
		t.Fatalf("expected lookup hit, got %d %s", lookup.Code, lookup.Body.String())
	}

	detail := doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+created.Transaction.ID, token, "", nil)
	if detail.Code != http.StatusOK {
		t.Fatalf("expected order detail, got %d", detail.Code)
	}
}

func TestSubmitOrderStatusMapping(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	// 300 x 18g exceeds the 5000g of seeded beans.
	short := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, csrf, americanoPayload("idem-http-short", 300))
	if short.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d (body: %s)", short.Code, short.Body.String())
	}
	var stockBody map[string]any
	_ = json.NewDecoder(short.Body).Decode(&stockBody)
	if stockBody["ingredient_id"] != "ing-coffee-bean" {
		t.Fatalf("expected ingredient detail, got %v", stockBody)
	}

	bad := americanoPayload("idem-http-bad", 0)
	invalid := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, csrf, bad)
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", invalid.Code)
	}
	var invalidBody map[string]any
	_ = json.NewDecoder(invalid.Body).Decode(&invalidBody)
	if invalidBody["field"] != "items[0].quantity" {
		t.Fatalf("expected field detail, got %v", invalidBody)
	}

	missing := doJSON(t, handler, http.MethodGet, "/api/v1/orders/tx-missing", token, "", nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}

func TestCancelOrderRequiresManagerPIN(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, csrf, americanoPayload("idem-http-cancel", 1))
	var created domain.OrderResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	path := "/api/v1/orders/" + created.Transaction.ID + "/cancel"

	wrong := doJSON(t, handler, http.MethodPost, path, token, csrf, map[string]any{"reason": "test", "manager_pin": "000000"})
	if wrong.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d", wrong.Code)
	}

	ok := doJSON(t, handler, http.MethodPost, path, token, csrf, map[string]any{"reason": "test", "manager_pin": testManagerPIN})
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", ok.Code, ok.Body.String())
	}

	again := doJSON(t, handler, http.MethodPost, path, token, csrf, map[string]any{"reason": "test", "manager_pin": testManagerPIN})
	if again.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second cancel, got %d", again.Code)
	}

	unknown := doJSON(t, handler, http.MethodPost, "/api/v1/orders/tx-missing/cancel", token, csrf, map[string]any{"reason": "test", "manager_pin": testManagerPIN})
	if unknown.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown transaction, got %d", unknown.Code)
	}
}

func TestAnalyticsRequireAdmin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	cashier := loginAs(t, api, "cashier", "cashier123")
	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/dashboard", cashier, "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	admin := loginAs(t, api, "admin", "admin123")
	for _, path := range []string{
		"/api/v1/dashboard?store_id=main-store",
		"/api/v1/sales/daily?store_id=main-store",
		"/api/v1/sales/series?store_id=main-store&period=week",
		"/api/v1/sales/top-menus?store_id=main-store",
		"/api/v1/audit-logs?store_id=main-store",
		"/api/v1/stock?store_id=main-store",
	} {
		if rec := doJSON(t, handler, http.MethodGet, path, admin, "", nil); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d (body: %s)", path, rec.Code, rec.Body.String())
		}
	}

	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales/daily?from=bad", admin, "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestMonthlyReportFormats(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := loginAs(t, api, "admin", "admin123")

	cases := []struct {
		format      string
		contentType string
	}{
		{"json", "application/json"},
		{"csv", "text/csv; charset=utf-8"},
		{"html", "text/html; charset=utf-8"},
		{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	}
	for _, tc := range cases {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/monthly?store_id=main-store&year=2025&month=3&format="+tc.format, admin, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d (body: %s)", tc.format, rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Content-Type"); got != tc.contentType {
			t.Fatalf("%s: expected content type %q, got %q", tc.format, tc.contentType, got)
		}
		if rec.Body.Len() == 0 {
			t.Fatalf("%s: empty body", tc.format)
		}
	}

	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/monthly?format=pdf", admin, "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/monthly?year=2025&month=13", admin, "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for month 13, got %d", rec.Code)
	}
}

func TestCashierManagement(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := loginAs(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users/cashiers", admin, csrf, domain.CashierCreateRequest{Username: "barista2", Password: "pass1234"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	loginAs(t, api, "barista2", "pass1234")
}

func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
