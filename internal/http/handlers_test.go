package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ProductLookupMock struct {
	products    map[int64]api.Product
	lastFilters api.ProductFilters
	lastPage    api.PageParams
}

func (m *ProductLookupMock) GetProduct(_ context.Context, id int64) (api.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return api.Product{}, &api.Error{StatusCode: http.StatusNotFound, Category: api.CategoryNotFound, Message: "product not found"}
	}
	return p, nil
}

func (m *ProductLookupMock) ListProducts(_ context.Context, filters api.ProductFilters, page api.PageParams) (api.Page[api.Product], error) {
	m.lastFilters = filters
	m.lastPage = page
	var items []api.Product
	for id := int64(1); id <= int64(len(m.products)); id++ {
		if p, ok := m.products[id]; ok && (filters.Category == "" || p.Category == filters.Category) {
			items = append(items, p)
		}
	}
	return api.Page[api.Product]{Items: items, Total: len(items), Page: 1, Limit: 10, TotalPages: 1}, nil
}

type OrderSubmitterMock struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *OrderSubmitterMock) SubmitOrder(context.Context, domain.OrderRequest) (domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return domain.OrderResult{}, m.err
	}
	return domain.OrderResult{OrderID: "order-42", Status: "PENDING"}, nil
}

type PosterMock struct{}

func (PosterMock) Post(_ context.Context, endpoint string, body, out any) error {
	switch endpoint {
	case "auth/register":
		reg, _ := body.(auth.Registration)
		if reg.Username == "taken" {
			return &api.Error{StatusCode: http.StatusConflict, Category: api.CategoryConflict, Message: "username taken"}
		}
		return json.Unmarshal([]byte(`{"token":"opaque","user":{"id":2,"username":"`+reg.Username+`"}}`), out)
	default:
		creds, _ := body.(auth.Credentials)
		if creds.Password != "secret" {
			return &api.Error{StatusCode: http.StatusUnauthorized, Category: api.CategoryUnauthorized, Message: "invalid credentials"}
		}
		return json.Unmarshal([]byte(`{"token":"opaque","user":{"id":1,"username":"ada"}}`), out)
	}
}

func (PosterMock) PostAuth(_ context.Context, _ string, _, out any) error {
	return json.Unmarshal([]byte(`{"token":"refreshed","expiresAt":"2030-01-01T00:00:00Z"}`), out)
}

type testServer struct {
	handler  http.Handler
	manager  *cart.Manager
	orders   *OrderSubmitterMock
	products *ProductLookupMock
	tokens   *auth.TokenStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	orders := &OrderSubmitterMock{}
	manager := cart.NewManager(cart.NewStorageSnapshots(store, zerolog.Nop()), orders)
	products := &ProductLookupMock{products: map[int64]api.Product{
		1: {ID: 1, Name: "Widget", Price: decimal.NewFromInt(10), Stock: 5, Category: "tools"},
		2: {ID: 2, Name: "Gadget", Price: decimal.RequireFromString("2.50"), Stock: 3, Category: "toys"},
		3: {ID: 3, Name: "Sold out", Price: decimal.NewFromInt(1), Stock: 0, Category: "tools"},
	}}
	tokens := auth.NewTokenStore(store, zerolog.Nop())
	authSvc := auth.NewService(PosterMock{}, tokens)

	handler := NewRouter(RouterConfig{
		Cart:           NewCartHandler(manager, products, 5*time.Second),
		Checkout:       NewCheckoutHandler(manager, 5*time.Second),
		Auth:           NewAuthHandler(authSvc, 5*time.Second),
		Products:       NewProductHandler(products, 5*time.Second),
		Logger:         zerolog.Nop(),
		RequestTimeout: 5 * time.Second,
	})
	return &testServer{handler: handler, manager: manager, orders: orders, products: products, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) domain.Cart {
	t.Helper()
	var c domain.Cart
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	return c
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	return e
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	rec := httptest.NewRecorder()

	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get(RequestIDHeader))
}

func TestAddItem_Success(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":2}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	c := decodeCart(t, rec)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "Widget", c.Lines[0].Name)
	assert.Equal(t, 5, c.Lines[0].AvailableStock)
	assert.Equal(t, 2, c.TotalItems)
	assert.True(t, c.TotalPrice.Equal(decimal.NewFromInt(20)))
}

func TestAddItem_ClampsToStock(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":2}`)
	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":10}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 5, decodeCart(t, rec).TotalItems)
}

func TestAddItem_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid json", `{`, http.StatusBadRequest, "invalid_request"},
		{"bad product id", `{"product_id":0,"quantity":1}`, http.StatusBadRequest, "invalid_product_id"},
		{"bad quantity", `{"product_id":1,"quantity":0}`, http.StatusBadRequest, "invalid_quantity"},
		{"unknown product", `{"product_id":99,"quantity":1}`, http.StatusNotFound, "not_found"},
		{"out of stock", `{"product_id":3,"quantity":1}`, http.StatusConflict, "stock_exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do(t, http.MethodPost, "/api/v1/cart/items", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
			assert.True(t, s.manager.IsEmpty())
		})
	}
}

func TestLineOperations(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":1}`)
	s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2,"quantity":1}`)

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/1", `{"quantity":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decodeCart(t, rec).TotalItems)

	rec = s.do(t, http.MethodPost, "/api/v1/cart/items/2/increment", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, decodeCart(t, rec).TotalItems)

	rec = s.do(t, http.MethodPost, "/api/v1/cart/items/1/decrement", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decodeCart(t, rec).TotalItems)

	rec = s.do(t, http.MethodDelete, "/api/v1/cart/items/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeCart(t, rec).Lines, 1)

	rec = s.do(t, http.MethodGet, "/api/v1/cart/totals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var totals domain.Totals
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&totals))
	assert.Equal(t, 3, totals.TotalItems)
	assert.True(t, totals.TotalPrice.Equal(decimal.NewFromInt(30)))

	rec = s.do(t, http.MethodPut, "/api/v1/cart/items/1", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Lines)
}

func TestLineOperations_InvalidInput(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/abc", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_product_id", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPut, "/api/v1/cart/items/1", `{"quantity":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_quantity", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/cart/items/-4/increment", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndClearCart(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2,"quantity":2}`)

	rec := s.do(t, http.MethodGet, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeCart(t, rec).TotalItems)

	rec = s.do(t, http.MethodDelete, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeCart(t, rec).IsEmpty())
}

func TestCheckoutPayload(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/checkout/payload", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "empty_cart", decodeError(t, rec).Code)

	s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":2}`)
	rec = s.do(t, http.MethodGet, "/api/v1/checkout/payload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload domain.CheckoutPayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	assert.Equal(t, []domain.OrderLine{{ProductID: 1, Quantity: 2}}, payload.Lines)
	assert.True(t, payload.Total.Equal(decimal.NewFromInt(20)))
}

const validShipping = `{"firstName":"Ada","lastName":"Lovelace","address":"1 Main St","city":"London","state":"LDN","zipCode":"SW1","phone":"555"}`

func TestCheckoutSubmit_Success(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":2}`)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", validShipping)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CheckoutResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "order-42", resp.OrderID)
	assert.True(t, s.manager.IsEmpty())
}

func TestCheckoutSubmit_Errors(t *testing.T) {
	t.Run("invalid shipping", func(t *testing.T) {
		s := newTestServer(t)
		s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":2}`)

		rec := s.do(t, http.MethodPost, "/api/v1/checkout", `{"firstName":"Ada"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_shipping", decodeError(t, rec).Code)
		assert.Equal(t, 0, s.orders.calls)
	})

	t.Run("empty cart", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPost, "/api/v1/checkout", validShipping)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "empty_cart", decodeError(t, rec).Code)
		assert.Equal(t, 0, s.orders.calls)
	})

	t.Run("payment declined keeps cart", func(t *testing.T) {
		s := newTestServer(t)
		s.orders.err = &api.Error{StatusCode: http.StatusPaymentRequired, Category: api.CategoryPayment, Message: "card declined"}
		s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":2}`)

		rec := s.do(t, http.MethodPost, "/api/v1/checkout", validShipping)

		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		e := decodeError(t, rec)
		assert.Equal(t, "payment_failed", e.Code)
		assert.Equal(t, "card declined", e.Error)
		assert.Equal(t, 2, s.manager.ItemCount())
	})

	t.Run("transport failure", func(t *testing.T) {
		s := newTestServer(t)
		s.orders.err = &api.Error{Category: api.CategoryTransport, Message: "connection refused"}
		s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":1}`)

		rec := s.do(t, http.MethodPost, "/api/v1/checkout", validShipping)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "transport", decodeError(t, rec).Code)
	})
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"ada","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"ada"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"ada","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var user auth.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "ada", user.Username)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRegisterAndRefresh(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "nothing to refresh when signed out")

	rec = s.do(t, http.MethodPost, "/api/v1/auth/register", `{"username":"grace","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/register", `{"username":"taken","email":"t@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/register", `{"username":"grace","email":"g@example.com","password":"pw"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var user auth.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "grace", user.Username)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "refreshed", "token is not echoed")

	token, err := s.tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed", token)
}

func TestProductRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/products?category=tools&page=2&limit=500&order=desc&isSale=true&minPrice=1.5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page api.Page[api.Product]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(1), page.Items[0].ID)

	assert.Equal(t, "tools", s.products.lastFilters.Category)
	require.NotNil(t, s.products.lastFilters.IsSale)
	assert.True(t, *s.products.lastFilters.IsSale)
	require.NotNil(t, s.products.lastFilters.MinPrice)
	assert.True(t, decimal.RequireFromString("1.5").Equal(*s.products.lastFilters.MinPrice))
	assert.Equal(t, api.PageParams{Page: 2, Limit: maxPageLimit, Order: "desc"}, s.products.lastPage)

	rec = s.do(t, http.MethodGet, "/api/v1/products/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var product api.Product
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&product))
	assert.Equal(t, "Gadget", product.Name)

	rec = s.do(t, http.MethodGet, "/api/v1/products/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductRoutes_InvalidQuery(t *testing.T) {
	s := newTestServer(t)

	for _, query := range []string{"page=0", "limit=abc", "order=sideways", "isNew=maybe", "maxPrice=-1"} {
		rec := s.do(t, http.MethodGet, "/api/v1/products?"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
		assert.Equal(t, "invalid_query", decodeError(t, rec).Code, query)
	}
}

func TestAddItem_BackendTimeout(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer backend.Close()

	client, err := api.NewClient(backend.URL, api.WithTimeout(300*time.Millisecond))
	require.NoError(t, err)
	manager := cart.NewManager(cart.NewStorageSnapshots(storage.NewMemoryStore(), zerolog.Nop()), &OrderSubmitterMock{})
	handler := NewRouter(RouterConfig{
		Cart:           NewCartHandler(manager, api.NewProductClient(client), 50*time.Millisecond),
		Checkout:       NewCheckoutHandler(manager, time.Second),
		Logger:         zerolog.Nop(),
		RequestTimeout: 5 * time.Second,
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":1,"quantity":1}`)))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "timeout", decodeError(t, rec).Code)
	assert.True(t, manager.IsEmpty())
}

func TestCartStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/cart/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() domain.Cart {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var c domain.Cart
				require.NoError(t, json.Unmarshal([]byte(data), &c))
				return c
			}
		}
	}

	assert.True(t, next().IsEmpty(), "current cart is sent first")

	require.NoError(t, s.manager.AddItem(domain.CartLine{ProductID: 9, UnitPrice: decimal.NewFromInt(1), Quantity: 2, AvailableStock: 4}))
	assert.Equal(t, 2, next().TotalItems)
}
