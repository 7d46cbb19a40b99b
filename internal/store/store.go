package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"

	"orderdesk/backend/internal/domain"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation failed")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrAlreadyCanceled         = errors.New("transaction is already canceled")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key conflict")
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError names the ingredient that could not cover an order.
type InsufficientStockError struct {
	IngredientID   string
	IngredientName string
	MenuName       string
	Required       int64
	Available      int64
}

func (e *InsufficientStockError) Error() string {
	name := e.IngredientName
	if name == "" {
		name = e.IngredientID
	}
	if e.MenuName != "" {
		return fmt.Sprintf("insufficient stock: %s for %s (required %d, available %d)", name, e.MenuName, e.Required, e.Available)
	}
	return fmt.Sprintf("insufficient stock: %s (required %d, available %d)", name, e.Required, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// CommitResult carries the committed transaction and whether it was
// already present for the idempotency key.
type CommitResult struct {
	Transaction *domain.Transaction
	Duplicate   bool
}

type Repository interface {
	ListSellableMenu(ctx context.Context, storeID string) ([]domain.MenuSnapshotLine, error)
	GetIngredientRequirements(ctx context.Context, menuIDs []string) (map[string][]domain.IngredientRequirement, error)
	ListIngredientStock(ctx context.Context, storeID string) ([]domain.IngredientStock, error)
	GetAreaAverage(ctx context.Context, storeID string, year int, month int) ([]domain.AreaAverage, error)

	// CommitOrder performs the idempotency check, stock check, stock decrement
	// and insert as one atomic operation.
	CommitOrder(ctx context.Context, tx domain.Transaction) (CommitResult, error)
	// CancelTransaction flips a PAID transaction to CANCELED and, unless the
	// cancellation is waste, restores the consumption recorded at commit.
	CancelTransaction(ctx context.Context, id string, cancellation domain.Cancellation) (*domain.Transaction, error)
	FindTransactionByIdempotency(ctx context.Context, storeID string, key string) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error)

	ListSalesFacts(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.SalesFact, error)
	ListSoldLines(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.SoldLine, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// ConsumptionFor sums recipe requirements over the order lines, keyed by
// ingredient. Lines whose menu has no recipe consume nothing. A line whose
// requirement does not fit in int64 is reported as a quantity error.
func ConsumptionFor(items []domain.TransactionLine, recipes map[string][]domain.IngredientRequirement) ([]domain.StockMovement, error) {
	totals := make(map[string]int64)
	order := make([]string, 0, len(items))
	for i, item := range items {
		for _, req := range recipes[item.MenuID] {
			if req.QtyPerUnit <= 0 {
				continue
			}
			need, ok := mulNonNegative(req.QtyPerUnit, int64(item.Quantity))
			if !ok {
				return nil, quantityTooLarge(i)
			}
			sum, ok := addNonNegative(totals[req.IngredientID], need)
			if !ok {
				return nil, quantityTooLarge(i)
			}
			if _, seen := totals[req.IngredientID]; !seen {
				order = append(order, req.IngredientID)
			}
			totals[req.IngredientID] = sum
		}
	}

	movements := make([]domain.StockMovement, 0, len(order))
	for _, id := range order {
		movements = append(movements, domain.StockMovement{IngredientID: id, Qty: totals[id]})
	}
	return movements, nil
}

// FirstMenuUsing returns the name of the first order line whose recipe uses
// the ingredient, for error messages.
func FirstMenuUsing(ingredientID string, items []domain.TransactionLine, recipes map[string][]domain.IngredientRequirement) string {
	for _, item := range items {
		for _, req := range recipes[item.MenuID] {
			if req.IngredientID == ingredientID {
				return item.MenuName
			}
		}
	}
	return ""
}

// TotalAmount is the line sum minus discount. Overflowing line totals are
// reported against the offending line.
func TotalAmount(items []domain.TransactionLine, discount int64) (int64, error) {
	var subtotal int64
	for i, item := range items {
		if item.Quantity < 0 || item.UnitPrice < 0 {
			return 0, quantityTooLarge(i)
		}
		line, ok := mulNonNegative(item.UnitPrice, int64(item.Quantity))
		if !ok {
			return 0, quantityTooLarge(i)
		}
		if subtotal, ok = addNonNegative(subtotal, line); !ok {
			return 0, quantityTooLarge(i)
		}
	}
	return subtotal - discount, nil
}

func quantityTooLarge(line int) error {
	return Invalid(fmt.Sprintf("items[%d].quantity", line), "is too large")
}

func mulNonNegative(a int64, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

func addNonNegative(a int64, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

func CloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = append([]domain.TransactionLine(nil), src.Items...)
	dup.Consumption = append([]domain.StockMovement(nil), src.Consumption...)
	if src.Cancellation != nil {
		c := *src.Cancellation
		dup.Cancellation = &c
	}
	return &dup
}
