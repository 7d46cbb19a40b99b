package loadtest

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/httpapi"
	"orderdesk/backend/internal/logger"
	"orderdesk/backend/internal/service"
	"orderdesk/backend/internal/store"
	"orderdesk/backend/internal/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{DefaultStoreID: memory.DefaultStoreID})
	auth := httpapi.NewAuthManager(context.Background(), "test-secret-key", time.Hour, "739154", repo, logger.Nop())
	srv := httptest.NewServer(httpapi.New(svc, auth, "*", logger.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRunsAgainstHTTPServer(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	client := NewClient(srv.URL, srv.Client())
	if err := client.Login(ctx, "cashier", "cashier123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	runner := NewRunner(client, client, client, Config{
		StoreID:           memory.DefaultStoreID,
		Terminals:         3,
		OrdersPerTerminal: 5,
		MaxLines:          2,
		MaxQuantity:       1,
	}, logger.Nop())
	res, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Committed+res.StockRejected != 15 || len(res.DoubleCommits) != 0 {
		t.Fatalf("unexpected results %+v", res)
	}
	if res.Unverified != 0 || len(res.PhantomCommits) != 0 {
		t.Fatalf("expected every key read back over HTTP, got %+v", res)
	}

	lookup, err := client.LookupOrderByIdempotency(ctx, memory.DefaultStoreID, "idem-never-sent")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if lookup.Found {
		t.Fatalf("unknown key must not be found")
	}
}

func TestClientMapsErrorsBack(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	client := NewClient(srv.URL, srv.Client())
	if err := client.Login(ctx, "cashier", "cashier123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	_, err := client.SubmitOrder(ctx, domain.SubmitOrderRequest{
		StoreID:        memory.DefaultStoreID,
		IdempotencyKey: "idem-big",
		PaymentMethod:  domain.PaymentCard,
		Items:          []domain.OrderItem{{MenuID: "menu-americano", Quantity: 300, UnitPrice: 4500}},
	})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.IngredientID != "ing-coffee-bean" {
		t.Fatalf("expected insufficient stock on beans, got %v", err)
	}

	_, err = client.SubmitOrder(ctx, domain.SubmitOrderRequest{
		StoreID:        memory.DefaultStoreID,
		IdempotencyKey: "idem-zero",
		PaymentMethod:  domain.PaymentCard,
		Items:          []domain.OrderItem{{MenuID: "menu-americano", Quantity: 0, UnitPrice: 4500}},
	})
	var validationErr *store.ValidationError
	if !errors.As(err, &validationErr) || validationErr.Field != "items[0].quantity" {
		t.Fatalf("expected quantity validation error, got %v", err)
	}
}
