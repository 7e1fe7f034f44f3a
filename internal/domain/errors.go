package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidLine        = errors.New("invalid cart line")
	ErrStockExceeded      = errors.New("quantity exceeds available stock")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrInvalidShipping    = errors.New("invalid shipping info")
)

// StockExceededError names the line whose quantity is above its stock snapshot.
type StockExceededError struct {
	ProductID      int64
	Quantity       int
	AvailableStock int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("product %d: quantity %d exceeds available stock %d", e.ProductID, e.Quantity, e.AvailableStock)
}

func (e *StockExceededError) Is(target error) bool {
	return target == ErrStockExceeded
}
