package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartClearer is satisfied by *cart.Manager.
type CartClearer interface {
	Clear()
}

type ConsumerConfig struct {
	Brokers       []string
	CheckoutTopic string
	SessionID     string
	Origin        string
}

// Consumer clears the local cart when the same session checks out from
// another process.
type Consumer struct {
	reader  messageReader
	cart    CartClearer
	session string
	origin  string
	backoff time.Duration
	log     zerolog.Logger
}

func NewConsumer(cfg ConsumerConfig, cart CartClearer, log zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.CheckoutTopic,
		// one group per process: every instance needs every event
		GroupID:  "storefront-" + cfg.Origin,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(reader, cart, cfg, log)
}

func newConsumer(reader messageReader, cart CartClearer, cfg ConsumerConfig, log zerolog.Logger) *Consumer {
	return &Consumer{
		reader:  reader,
		cart:    cart,
		session: cfg.SessionID,
		origin:  cfg.Origin,
		backoff: time.Second,
		log:     log,
	}
}

// Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Msg("error reading message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		c.handle(m)
	}
}

// handle reports whether the cart was cleared.
func (c *Consumer) handle(m kafka.Message) bool {
	if header(m, headerEventType) != TypeCheckoutCompleted {
		return false
	}

	var event CheckoutCompleted
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.Warn().Err(err).Msg("error parsing checkout event")
		return false
	}
	if event.SessionID != c.session {
		return false
	}
	origin := event.Origin
	if origin == "" {
		origin = header(m, headerOrigin)
	}
	if origin == c.origin {
		return false
	}

	c.log.Info().Str("order_id", event.OrderID).Str("origin", origin).Msg("session checked out elsewhere, clearing cart")
	c.cart.Clear()
	return true
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error().Err(err).Msg("error closing reader")
	}
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
