package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/shopspring/decimal"
)

// ProductCatalog is the read side of the backend product API.
type ProductCatalog interface {
	ProductLookup
	ListProducts(ctx context.Context, filters api.ProductFilters, page api.PageParams) (api.Page[api.Product], error)
}

type ProductHandler struct {
	products ProductCatalog
	timeout  time.Duration
}

func NewProductHandler(products ProductCatalog, timeout time.Duration) *ProductHandler {
	return &ProductHandler{products: products, timeout: timeout}
}

const maxPageLimit = 100

// GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	filters, page, err := parseListQuery(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}

	res, err := h.products.ListProducts(ctx, filters, page)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if res.Items == nil {
		res.Items = []api.Product{}
	}
	respondJSON(w, http.StatusOK, res)
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	product, err := h.products.GetProduct(ctx, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func parseListQuery(q url.Values) (api.ProductFilters, api.PageParams, error) {
	filters := api.ProductFilters{
		Category: q.Get("category"),
		Search:   q.Get("search"),
	}
	var page api.PageParams

	var err error
	if filters.MinPrice, err = decimalParam(q, "minPrice"); err != nil {
		return filters, page, err
	}
	if filters.MaxPrice, err = decimalParam(q, "maxPrice"); err != nil {
		return filters, page, err
	}
	if filters.IsNew, err = boolParam(q, "isNew"); err != nil {
		return filters, page, err
	}
	if filters.IsSale, err = boolParam(q, "isSale"); err != nil {
		return filters, page, err
	}

	if page.Page, err = intParam(q, "page"); err != nil {
		return filters, page, err
	}
	if page.Limit, err = intParam(q, "limit"); err != nil {
		return filters, page, err
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}

	page.Sort = q.Get("sort")
	switch order := q.Get("order"); order {
	case "", "asc", "desc":
		page.Order = order
	default:
		return filters, page, errors.New("order must be asc or desc")
	}
	return filters, page, nil
}

func decimalParam(q url.Values, key string) (*decimal.Decimal, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, fmt.Errorf("%s must be a non-negative number", key)
	}
	return &d, nil
}

func boolParam(q url.Values, key string) (*bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", key)
	}
	return &b, nil
}

func intParam(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}
