package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type OrderLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// CheckoutPayload is the minimal order-submission shape built from the cart.
type CheckoutPayload struct {
	Lines []OrderLine     `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

type ShippingInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Phone     string `json:"phone"`
}

// Validate reports every required field left blank.
func (s ShippingInfo) Validate() error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"firstName", s.FirstName},
		{"lastName", s.LastName},
		{"address", s.Address},
		{"city", s.City},
		{"state", s.State},
		{"zipCode", s.ZipCode},
		{"phone", s.Phone},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidShipping, strings.Join(missing, ", "))
	}
	return nil
}

// OrderRequest is what gets sent to the order API: the checkout payload
// merged with shipping info.
type OrderRequest struct {
	Lines          []OrderLine     `json:"lines"`
	Total          decimal.Decimal `json:"total"`
	ShippingInfo   ShippingInfo    `json:"shippingInfo"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

type OrderResult struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status,omitempty"`
}
