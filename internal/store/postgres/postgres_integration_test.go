package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/store"
)

type fixture struct {
	store    *Store
	storeID  string
	menuID   string
	beanID   string
	cupID    string
	menuName string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	databaseURL := os.Getenv("ORDERDESK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set ORDERDESK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	stamp := time.Now().UnixNano()
	f := fixture{
		store:    s,
		storeID:  fmt.Sprintf("store-it-%d", stamp),
		menuID:   fmt.Sprintf("menu-it-%d", stamp),
		beanID:   fmt.Sprintf("ing-bean-it-%d", stamp),
		cupID:    fmt.Sprintf("ing-cup-it-%d", stamp),
		menuName: "아메리카노",
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE store_id = $1`, f.storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE store_id = $1`, f.storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ingredient_stocks WHERE store_id = $1`, f.storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM menus WHERE store_id = $1`, f.storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ingredients WHERE id = ANY($1)`, []string{f.beanID, f.cupID})
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, f.storeID)
	})

	seed := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO stores (id, name) VALUES ($1, 'integration')`, []any{f.storeID}},
		{`INSERT INTO menus (id, store_id, name, unit_price) VALUES ($1, $2, $3, 4500)`, []any{f.menuID, f.storeID, f.menuName}},
		{`INSERT INTO ingredients (id, name, unit) VALUES ($1, '원두', 'g'), ($2, '컵', 'ea')`, []any{f.beanID, f.cupID}},
		{`INSERT INTO menu_ingredients (menu_id, ingredient_id, qty_per_unit) VALUES ($1, $2, 18), ($1, $3, 1)`, []any{f.menuID, f.beanID, f.cupID}},
		{`INSERT INTO ingredient_stocks (store_id, ingredient_id, qty) VALUES ($1, $2, 1000), ($1, $3, 10)`, []any{f.storeID, f.beanID, f.cupID}},
	}
	for _, step := range seed {
		if _, err := s.db.ExecContext(ctx, step.query, step.args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return f
}

func (f fixture) order(key string, qty int) domain.Transaction {
	return domain.Transaction{
		StoreID:        f.storeID,
		IdempotencyKey: key,
		PaymentMethod:  domain.PaymentCard,
		Items: []domain.TransactionLine{
			{MenuID: f.menuID, MenuName: f.menuName, Quantity: qty, UnitPrice: 4500},
		},
		TransactionTime: time.Now().UTC(),
	}
}

func (f fixture) stockOf(t *testing.T, ingredientID string) int64 {
	t.Helper()
	stock, err := f.store.ListIngredientStock(context.Background(), f.storeID)
	if err != nil {
		t.Fatalf("list stock: %v", err)
	}
	for _, ing := range stock {
		if ing.IngredientID == ingredientID {
			return ing.Qty
		}
	}
	t.Fatalf("ingredient %s not found", ingredientID)
	return 0
}

func TestCommitOrderIsIdempotentUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan store.CommitResult, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.store.CommitOrder(ctx, f.order("idem-it", 2))
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("commit failed: %v", err)
	}
	fresh := 0
	var txID string
	for res := range results {
		if !res.Duplicate {
			fresh++
		}
		if txID == "" {
			txID = res.Transaction.ID
		} else if txID != res.Transaction.ID {
			t.Fatalf("expected one transaction id, got %s and %s", txID, res.Transaction.ID)
		}
	}
	if fresh != 1 {
		t.Fatalf("expected exactly one fresh commit, got %d", fresh)
	}

	if got := f.stockOf(t, f.beanID); got != 1000-36 {
		t.Fatalf("expected beans decremented once to 964, got %d", got)
	}
	if got := f.stockOf(t, f.cupID); got != 8 {
		t.Fatalf("expected cups 8, got %d", got)
	}

	tx, err := f.store.FindTransactionByIdempotency(ctx, f.storeID, "idem-it")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if tx.TotalAmount != 9000 || len(tx.Items) != 1 || tx.Items[0].MenuName != f.menuName {
		t.Fatalf("unexpected stored transaction %+v", tx)
	}
}

func TestCommitOrderDistinctKeysStopAtStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const orders = 16
	var wg sync.WaitGroup
	errs := make([]error, orders)
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.store.CommitOrder(ctx, f.order(fmt.Sprintf("idem-rush-%d", i), 1))
		}(i)
	}
	wg.Wait()

	committed, rejected := 0, 0
	for i, err := range errs {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, store.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("order %d failed unexpectedly: %v", i, err)
		}
	}
	if committed != 10 || rejected != orders-10 {
		t.Fatalf("expected 10 commits and %d rejections, got %d and %d", orders-10, committed, rejected)
	}
	if got := f.stockOf(t, f.cupID); got != 0 {
		t.Fatalf("expected cups to run out exactly, got %d", got)
	}
	if got := f.stockOf(t, f.beanID); got != 1000-10*18 {
		t.Fatalf("expected beans 820, got %d", got)
	}
}

func TestGetIngredientRequirements(t *testing.T) {
	f := newFixture(t)

	recipes, err := f.store.GetIngredientRequirements(context.Background(), []string{f.menuID, "menu-ghost"})
	if err != nil {
		t.Fatalf("requirements: %v", err)
	}
	reqs := recipes[f.menuID]
	if len(reqs) != 2 {
		t.Fatalf("expected two requirements, got %+v", reqs)
	}
	for _, req := range reqs {
		if (req.IngredientID == f.beanID && req.QtyPerUnit != 18) || (req.IngredientID == f.cupID && req.QtyPerUnit != 1) {
			t.Fatalf("unexpected requirement %+v", req)
		}
	}
	if _, ok := recipes["menu-ghost"]; ok {
		t.Fatalf("unknown menu must have no requirements")
	}
}

func TestCommitOrderRejectsInsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CommitOrder(ctx, f.order("idem-short", 11))
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if stockErr.IngredientID != f.cupID || stockErr.MenuName != f.menuName {
		t.Fatalf("unexpected stock error %+v", stockErr)
	}
	if got := f.stockOf(t, f.beanID); got != 1000 {
		t.Fatalf("expected beans untouched, got %d", got)
	}
	if _, err := f.store.FindTransactionByIdempotency(ctx, f.storeID, "idem-short"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no transaction, got %v", err)
	}
}

func TestCancelTransactionRestocksUnlessWaste(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	restored, err := f.store.CommitOrder(ctx, f.order("idem-cancel", 1))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	wasted, err := f.store.CommitOrder(ctx, f.order("idem-waste", 1))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := f.stockOf(t, f.cupID); got != 8 {
		t.Fatalf("expected cups 8 after two orders, got %d", got)
	}

	tx, err := f.store.CancelTransaction(ctx, restored.Transaction.ID, domain.Cancellation{Reason: "changed mind"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if tx.Status != domain.TxStatusCanceled || tx.Cancellation == nil || tx.Cancellation.Reason != "changed mind" {
		t.Fatalf("unexpected canceled transaction %+v", tx)
	}
	if got := f.stockOf(t, f.cupID); got != 9 {
		t.Fatalf("expected cups restored to 9, got %d", got)
	}

	if _, err := f.store.CancelTransaction(ctx, wasted.Transaction.ID, domain.Cancellation{Reason: "dropped", IsWaste: true}); err != nil {
		t.Fatalf("waste cancel: %v", err)
	}
	if got := f.stockOf(t, f.cupID); got != 9 {
		t.Fatalf("expected waste cancel to keep cups at 9, got %d", got)
	}

	if _, err := f.store.CancelTransaction(ctx, restored.Transaction.ID, domain.Cancellation{Reason: "again"}); !errors.Is(err, store.ErrAlreadyCanceled) {
		t.Fatalf("expected already canceled, got %v", err)
	}
	if _, err := f.store.CancelTransaction(ctx, "tx-missing", domain.Cancellation{Reason: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	facts, err := f.store.ListSalesFacts(ctx, f.storeID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sales facts: %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("expected canceled transactions excluded from sales, got %d", len(facts))
	}
}
