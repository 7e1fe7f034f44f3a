package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Stock         int              `json:"stock"`
	ImageURL      string           `json:"imageUrl"`
	Category      string           `json:"category"`
	Slug          string           `json:"slug"`
	IsNew         bool             `json:"isNew"`
	IsSale        bool             `json:"isSale"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// ToCartLine captures the product's price and stock at this moment.
func (p Product) ToCartLine(quantity int) domain.CartLine {
	return domain.CartLine{
		ProductID:      p.ID,
		Name:           p.Name,
		ImageURL:       p.ImageURL,
		UnitPrice:      p.Price,
		Quantity:       quantity,
		AvailableStock: p.Stock,
	}
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func (p Page[T]) HasNext() bool { return p.Page < p.TotalPages }

func (p Page[T]) HasPrev() bool { return p.Page > 1 }

type ProductFilters struct {
	Category string
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	IsNew    *bool
	IsSale   *bool
}

type PageParams struct {
	Page  int
	Limit int
	Sort  string
	Order string // asc or desc
}

type ProductClient struct {
	client *Client
}

func NewProductClient(client *Client) *ProductClient {
	return &ProductClient{client: client}
}

func (p *ProductClient) GetProduct(ctx context.Context, id int64) (Product, error) {
	var product Product
	err := p.client.Get(ctx, fmt.Sprintf("products/%d", id), nil, &product)
	return product, err
}

func (p *ProductClient) ListProducts(ctx context.Context, filters ProductFilters, page PageParams) (Page[Product], error) {
	var res Page[Product]
	err := p.client.Get(ctx, "products", listParams(filters, page), &res)
	return res, err
}

// listParams skips unset values.
func listParams(f ProductFilters, p PageParams) url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("category", f.Category)
	set("search", f.Search)
	if f.MinPrice != nil {
		v.Set("minPrice", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		v.Set("maxPrice", f.MaxPrice.String())
	}
	if f.IsNew != nil {
		v.Set("isNew", strconv.FormatBool(*f.IsNew))
	}
	if f.IsSale != nil {
		v.Set("isSale", strconv.FormatBool(*f.IsSale))
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	set("sort", p.Sort)
	set("order", p.Order)
	return v
}
