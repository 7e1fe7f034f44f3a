package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/events"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logg := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "storefront"})
	log.Logger = logg

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		logg.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("failed to open storage")
	}
	defer store.Close()
	logg.Info().Str("backend", cfg.StorageBackend).Str("session_id", cfg.SessionID).Msg("storage ready")

	tokens := auth.NewTokenStore(store, logg)

	breakerCfg := circuitbreaker.Config{
		Name:         "storefront-api",
		MaxRequests:  cfg.BreakerMaxRequests,
		Interval:     cfg.BreakerInterval,
		Timeout:      cfg.BreakerTimeout,
		MinRequests:  cfg.BreakerMinRequests,
		FailureRatio: cfg.BreakerFailureRatio,
		IsSuccessful: api.BreakerSuccess,
	}
	client, err := api.NewClient(cfg.APIBaseURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithTokenSource(tokens),
		api.WithBreaker(circuitbreaker.New(breakerCfg, logg)),
		api.WithLogger(logg),
	)
	if err != nil {
		logg.Fatal().Err(err).Msg("failed to create api client")
	}

	opts := []cart.Option{cart.WithLogger(logg)}
	var publisher *events.Publisher
	if cfg.KafkaEnabled() {
		publisher = events.NewPublisher(events.PublisherConfig{
			Brokers:       cfg.KafkaBrokers,
			CartTopic:     cfg.KafkaCartTopic,
			CheckoutTopic: cfg.KafkaCheckoutTopic,
			SessionID:     cfg.SessionID,
			Origin:        cfg.InstanceID,
		}, logg)
		defer publisher.Close()
		opts = append(opts, cart.WithEvents(publisher))
	}

	manager := cart.NewManager(
		cart.NewStorageSnapshots(store, logg),
		api.NewOrderClient(client),
		opts...,
	)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if publisher != nil {
		unsubscribe := manager.Subscribe(publisher.CartUpdated)
		defer unsubscribe()

		consumer := events.NewConsumer(events.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			CheckoutTopic: cfg.KafkaCheckoutTopic,
			SessionID:     cfg.SessionID,
			Origin:        cfg.InstanceID,
		}, manager, logg)
		defer consumer.Close()
		go consumer.Run(runCtx)
		logg.Info().Strs("brokers", cfg.KafkaBrokers).Msg("kafka events enabled")
	}

	products := api.NewProductClient(client)
	router := h.NewRouter(h.RouterConfig{
		Cart:           h.NewCartHandler(manager, products, cfg.RequestTimeout),
		Checkout:       h.NewCheckoutHandler(manager, cfg.RequestTimeout),
		Auth:           h.NewAuthHandler(auth.NewService(client, tokens), cfg.RequestTimeout),
		Products:       h.NewProductHandler(products, cfg.RequestTimeout),
		Logger:         logg,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// cancelled on shutdown so open cart streams end
		BaseContext: func(net.Listener) context.Context { return runCtx },
	}

	go func() {
		logg.Info().Str("port", cfg.HTTPPort).Msg("storefront starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info().Msg("shutting down server...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error().Err(err).Msg("server forced to shutdown")
	}

	logg.Info().Msg("server exited")
}
