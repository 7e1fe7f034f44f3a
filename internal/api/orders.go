package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const IdempotencyHeader = "Idempotency-Key"

type orderItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type createOrderRequest struct {
	Items          []orderItem         `json:"items"`
	Total          decimal.Decimal     `json:"total"`
	ShippingInfo   domain.ShippingInfo `json:"shippingInfo"`
	IdempotencyKey string              `json:"idempotencyKey,omitempty"`
}

type createOrderResponse struct {
	ID      json.Number `json:"id"`
	OrderID string      `json:"orderId"`
	Status  string      `json:"status"`
}

// OrderClient submits orders. It does not retry: a failed submission is
// reported once and the caller decides.
type OrderClient struct {
	client *Client
}

func NewOrderClient(client *Client) *OrderClient {
	return &OrderClient{client: client}
}

// SubmitOrder posts to "orders". The call is authenticated whenever the
// client has a token source.
func (o *OrderClient) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	body := createOrderRequest{
		Items:          make([]orderItem, len(req.Lines)),
		Total:          req.Total,
		ShippingInfo:   req.ShippingInfo,
		IdempotencyKey: req.IdempotencyKey,
	}
	for i, l := range req.Lines {
		body.Items[i] = orderItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	r := request{
		method:   http.MethodPost,
		endpoint: "orders",
		body:     body,
		auth:     o.client.authenticated(),
	}
	if req.IdempotencyKey != "" {
		r.header = http.Header{IdempotencyHeader: []string{req.IdempotencyKey}}
	}

	var resp createOrderResponse
	if err := o.client.call(ctx, r, &resp); err != nil {
		return domain.OrderResult{}, err
	}

	id := resp.OrderID
	if id == "" {
		id = resp.ID.String()
	}
	return domain.OrderResult{OrderID: id, Status: resp.Status}, nil
}
