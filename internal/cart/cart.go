// Package cart holds the single-owner order draft a terminal builds before
// submitting. It does no I/O and is not safe for concurrent use.
package cart

import (
	"slices"

	"orderdesk/backend/internal/domain"
)

type Line struct {
	MenuID    string
	Name      string
	UnitPrice int64
	Quantity  int
}

type Cart struct {
	lines         []Line
	discount      int64
	paymentMethod string
}

func New() *Cart {
	return &Cart{paymentMethod: domain.PaymentCard}
}

// AddItem merges into an existing line or appends a new line with quantity 1.
func (c *Cart) AddItem(item domain.MenuSnapshotLine) {
	for i := range c.lines {
		if c.lines[i].MenuID == item.MenuID {
			c.lines[i].Quantity++
			return
		}
	}
	c.lines = append(c.lines, Line{
		MenuID:    item.MenuID,
		Name:      item.Name,
		UnitPrice: item.UnitPrice,
		Quantity:  1,
	})
}

// SetQuantity overwrites a line's quantity; qty <= 0 removes the line.
func (c *Cart) SetQuantity(menuID string, qty int) {
	idx := slices.IndexFunc(c.lines, func(l Line) bool { return l.MenuID == menuID })
	if idx < 0 {
		return
	}
	if qty <= 0 {
		c.lines = slices.Delete(c.lines, idx, idx+1)
		return
	}
	c.lines[idx].Quantity = qty
}

func (c *Cart) SetDiscount(discount int64) {
	c.discount = discount
}

func (c *Cart) SetPaymentMethod(method string) {
	c.paymentMethod = method
}

func (c *Cart) Clear() {
	c.lines = nil
	c.discount = 0
}

// Total is the line sum minus discount. It is not clamped; a negative total
// is rejected at submission.
func (c *Cart) Total() int64 {
	var total int64
	for _, l := range c.lines {
		total += l.UnitPrice * int64(l.Quantity)
	}
	return total - c.discount
}

func (c *Cart) Lines() []Line {
	return slices.Clone(c.lines)
}

func (c *Cart) ItemCount() int {
	count := 0
	for _, l := range c.lines {
		count += l.Quantity
	}
	return count
}

func (c *Cart) Discount() int64 {
	return c.discount
}

func (c *Cart) PaymentMethod() string {
	return c.paymentMethod
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// SubmitRequest snapshots the cart into a submit request under the given key.
func (c *Cart) SubmitRequest(storeID string, idempotencyKey string) domain.SubmitOrderRequest {
	items := make([]domain.OrderItem, 0, len(c.lines))
	for _, l := range c.lines {
		items = append(items, domain.OrderItem{
			MenuID:    l.MenuID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return domain.SubmitOrderRequest{
		StoreID:        storeID,
		IdempotencyKey: idempotencyKey,
		PaymentMethod:  c.paymentMethod,
		TotalDiscount:  c.discount,
		Items:          items,
	}
}
