package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps cart, auth and backend errors to HTTP responses.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr *domain.StockExceededError
		apiErr   *api.Error
	)

	switch {
	case errors.As(err, &stockErr):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "quantity exceeds available stock",
			Code:    "stock_exceeded",
			Details: fmt.Sprintf("product %d: requested %d, available %d", stockErr.ProductID, stockErr.Quantity, stockErr.AvailableStock),
		})
	case errors.Is(err, domain.ErrEmptyCart):
		respondError(w, http.StatusConflict, "empty_cart", err.Error())
	case errors.Is(err, domain.ErrCheckoutInProgress):
		respondError(w, http.StatusConflict, "checkout_in_progress", err.Error())
	case errors.Is(err, domain.ErrInvalidLine):
		respondError(w, http.StatusBadRequest, "invalid_line", err.Error())
	case errors.Is(err, domain.ErrInvalidShipping):
		respondError(w, http.StatusBadRequest, "invalid_shipping", err.Error())
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, auth.ErrTokenExpired):
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.As(err, &apiErr):
		status := apiErr.StatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		respondError(w, status, string(apiErr.Category), apiErr.Message)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unhandled error")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
