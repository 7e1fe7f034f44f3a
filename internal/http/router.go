// Package http exposes the cart manager over a JSON API.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Cart           *CartHandler
	Checkout       *CheckoutHandler
	Auth           *AuthHandler
	Products       *ProductHandler
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	bounded := func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(middleware.Compress(5))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			// long-lived, so no timeout or compression
			r.Get("/stream", cfg.Cart.Stream)

			r.Group(func(r chi.Router) {
				bounded(r)
				r.Get("/", cfg.Cart.GetCart)
				r.Delete("/", cfg.Cart.ClearCart)
				r.Get("/totals", cfg.Cart.Totals)
				r.Post("/items", cfg.Cart.AddItem)
				r.Put("/items/{product_id}", cfg.Cart.UpdateQuantity)
				r.Delete("/items/{product_id}", cfg.Cart.RemoveItem)
				r.Post("/items/{product_id}/increment", cfg.Cart.Increment)
				r.Post("/items/{product_id}/decrement", cfg.Cart.Decrement)
			})
		})

		r.Route("/checkout", func(r chi.Router) {
			bounded(r)
			r.Get("/payload", cfg.Checkout.Payload)
			r.Post("/", cfg.Checkout.Submit)
		})

		if cfg.Products != nil {
			r.Route("/products", func(r chi.Router) {
				bounded(r)
				r.Get("/", cfg.Products.List)
				r.Get("/{product_id}", cfg.Products.Get)
			})
		}

		if cfg.Auth != nil {
			r.Route("/auth", func(r chi.Router) {
				bounded(r)
				r.Post("/login", cfg.Auth.Login)
				r.Post("/register", cfg.Auth.Register)
				r.Post("/refresh", cfg.Auth.Refresh)
				r.Post("/logout", cfg.Auth.Logout)
				r.Get("/me", cfg.Auth.Me)
			})
		}
	})

	return r
}
