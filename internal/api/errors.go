package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type Category string

const (
	CategoryValidation   Category = "validation_failed"
	CategoryPayment      Category = "payment_failed"
	CategoryUnauthorized Category = "unauthorized"
	CategoryNotFound     Category = "not_found"
	CategoryConflict     Category = "conflict"
	CategoryServer       Category = "server_error"
	CategoryUnavailable  Category = "unavailable"
	CategoryTransport    Category = "transport"
)

// Error is returned for every failed call: non-2xx responses, transport
// failures and calls rejected by the circuit breaker. StatusCode is 0 when no
// response was received.
type Error struct {
	StatusCode int
	Category   Category
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api %s: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("api %s (%d): %s", e.Category, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request later may succeed.
func (e *Error) Temporary() bool {
	switch e.Category {
	case CategoryServer, CategoryUnavailable, CategoryTransport:
		return true
	}
	return false
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func newResponseError(status int, body []byte) *Error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	category := categoryForStatus(status)
	if known(Category(eb.Code)) {
		category = Category(eb.Code)
	}
	return &Error{StatusCode: status, Category: category, Message: msg}
}

func categoryForStatus(status int) Category {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return CategoryValidation
	case status == http.StatusPaymentRequired:
		return CategoryPayment
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return CategoryUnauthorized
	case status == http.StatusNotFound:
		return CategoryNotFound
	case status == http.StatusConflict:
		return CategoryConflict
	case status == http.StatusServiceUnavailable, status == http.StatusTooManyRequests:
		return CategoryUnavailable
	case status >= 500:
		return CategoryServer
	default:
		return CategoryValidation
	}
}

func known(c Category) bool {
	switch c {
	case CategoryValidation, CategoryPayment, CategoryUnauthorized, CategoryNotFound,
		CategoryConflict, CategoryServer, CategoryUnavailable:
		return true
	}
	return false
}
