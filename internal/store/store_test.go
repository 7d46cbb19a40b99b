package store

import (
	"errors"
	"math"
	"testing"

	"orderdesk/backend/internal/domain"
)

func TestConsumptionForSumsAcrossLines(t *testing.T) {
	recipes := map[string][]domain.IngredientRequirement{
		"menu-americano": {{IngredientID: "ing-coffee-bean", QtyPerUnit: 18}, {IngredientID: "ing-cup", QtyPerUnit: 1}},
		"menu-latte":     {{IngredientID: "ing-coffee-bean", QtyPerUnit: 18}, {IngredientID: "ing-cup", QtyPerUnit: 1}},
	}
	items := []domain.TransactionLine{
		{MenuID: "menu-americano", Quantity: 2},
		{MenuID: "menu-latte", Quantity: 3},
	}

	moves, err := ConsumptionFor(items, recipes)
	if err != nil {
		t.Fatalf("consumption failed: %v", err)
	}
	if len(moves) != 2 || moves[0].IngredientID != "ing-coffee-bean" || moves[0].Qty != 90 || moves[1].Qty != 5 {
		t.Fatalf("unexpected movements: %+v", moves)
	}
}

func TestConsumptionForRejectsOverflow(t *testing.T) {
	recipes := map[string][]domain.IngredientRequirement{
		"menu-rice": {{IngredientID: "ing-rice", QtyPerUnit: 210}},
		"menu-bulk": {{IngredientID: "ing-rice", QtyPerUnit: math.MaxInt64 / 2}},
	}

	_, err := ConsumptionFor([]domain.TransactionLine{{MenuID: "menu-rice", Quantity: 43920819223117981}}, recipes)
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "items[0].quantity" {
		t.Fatalf("expected items[0].quantity error, got %v", err)
	}

	// Each line fits on its own; the running total does not.
	_, err = ConsumptionFor([]domain.TransactionLine{
		{MenuID: "menu-bulk", Quantity: 1},
		{MenuID: "menu-rice", Quantity: 1},
		{MenuID: "menu-bulk", Quantity: 1},
	}, recipes)
	if !errors.As(err, &vErr) || vErr.Field != "items[2].quantity" {
		t.Fatalf("expected items[2].quantity error, got %v", err)
	}
}

func TestTotalAmount(t *testing.T) {
	total, err := TotalAmount([]domain.TransactionLine{
		{Quantity: 2, UnitPrice: 4500},
		{Quantity: 1, UnitPrice: 1000},
	}, 500)
	if err != nil {
		t.Fatalf("total failed: %v", err)
	}
	if total != 9500 {
		t.Fatalf("expected 9500, got %d", total)
	}

	_, err = TotalAmount([]domain.TransactionLine{
		{Quantity: 1, UnitPrice: 1000},
		{Quantity: 4, UnitPrice: 1 << 62},
	}, 0)
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "items[1].quantity" {
		t.Fatalf("expected items[1].quantity error, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("overflow must be a validation error")
	}
}
