package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CartLine is one product's presence in the cart. Name, ImageURL, UnitPrice and
// AvailableStock are copied when the line is added and never re-fetched.
type CartLine struct {
	ProductID      int64           `json:"productId"`
	Name           string          `json:"name"`
	ImageURL       string          `json:"imageUrl"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Quantity       int             `json:"quantity"`
	AvailableStock int             `json:"availableStock"`
}

// Subtotal returns UnitPrice * Quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Validate checks the constraints a line must satisfy before it can be added.
func (l CartLine) Validate() error {
	if l.ProductID <= 0 {
		return fmt.Errorf("%w: product_id must be greater than 0", ErrInvalidLine)
	}
	if l.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidLine)
	}
	if l.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidLine)
	}
	if l.AvailableStock < 0 {
		return fmt.Errorf("%w: available stock must not be negative", ErrInvalidLine)
	}
	return nil
}

// Cart is the aggregate. TotalItems and TotalPrice are derived from Lines and
// only ever written by Recompute.
type Cart struct {
	Lines      []CartLine      `json:"lines"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type Totals struct {
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// NewCart returns an empty cart with zeroed totals.
func NewCart() Cart {
	return Cart{Lines: []CartLine{}, TotalPrice: decimal.Zero}
}

// Recompute rebuilds both totals from scratch over all lines.
func (c *Cart) Recompute() {
	items := 0
	price := decimal.Zero
	for _, line := range c.Lines {
		items += line.Quantity
		price = price.Add(line.Subtotal())
	}
	c.TotalItems = items
	c.TotalPrice = price
}

func (c Cart) Totals() Totals {
	return Totals{TotalItems: c.TotalItems, TotalPrice: c.TotalPrice}
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Find returns the index of the line keyed by productID, or -1.
func (c Cart) Find(productID int64) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Line returns a copy of the line keyed by productID.
func (c Cart) Line(productID int64) (CartLine, bool) {
	i := c.Find(productID)
	if i < 0 {
		return CartLine{}, false
	}
	return c.Lines[i], true
}

// Remove drops the line keyed by productID, preserving the order of the rest.
func (c *Cart) Remove(productID int64) bool {
	i := c.Find(productID)
	if i < 0 {
		return false
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return true
}

// Clone returns a deep copy that shares no backing array with c.
func (c Cart) Clone() Cart {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines, TotalItems: c.TotalItems, TotalPrice: c.TotalPrice}
}

// Clamp constrains v to [lo, hi]. When hi < lo the result is lo.
func Clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
