package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

type CheckoutHandler struct {
	cart    *cart.Manager
	timeout time.Duration
}

func NewCheckoutHandler(manager *cart.Manager, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		cart:    manager,
		timeout: timeout,
	}
}

type CheckoutResponseDTO struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status,omitempty"`
}

// GET /api/v1/checkout/payload
func (h *CheckoutHandler) Payload(w http.ResponseWriter, r *http.Request) {
	payload, err := h.cart.PrepareCheckoutPayload()
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payload)
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var shipping domain.ShippingInfo
	if err := json.NewDecoder(r.Body).Decode(&shipping); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := shipping.Validate(); err != nil {
		handleError(w, r, err)
		return
	}

	result, err := h.cart.SubmitCheckout(ctx, shipping)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		OrderID: result.OrderID,
		Status:  result.Status,
	})
}
