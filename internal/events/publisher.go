// Package events publishes cart activity to Kafka and reacts to checkouts
// completed elsewhere in the same session.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	TypeCartUpdated       = "cart.updated"
	TypeCheckoutCompleted = "checkout.completed"

	headerEventType = "event_type"
	headerOrigin    = "origin"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CartUpdated struct {
	SessionID  string            `json:"session_id"`
	Lines      []domain.CartLine `json:"lines"`
	TotalItems int               `json:"total_items"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type CheckoutCompleted struct {
	OrderID     string             `json:"order_id"`
	Status      string             `json:"status,omitempty"`
	SessionID   string             `json:"session_id"`
	Origin      string             `json:"origin"`
	Lines       []domain.OrderLine `json:"lines"`
	Total       decimal.Decimal    `json:"total"`
	CompletedAt time.Time          `json:"completed_at"`
}

type PublisherConfig struct {
	Brokers       []string
	CartTopic     string
	CheckoutTopic string
	SessionID     string
	// Origin identifies this process so its own events can be ignored.
	Origin  string
	Timeout time.Duration
}

type Publisher struct {
	cart     messageWriter
	checkout messageWriter
	session  string
	origin   string
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewPublisher writes cart snapshots asynchronously so observers never wait
// on the broker; checkout events are written synchronously.
func NewPublisher(cfg PublisherConfig, log zerolog.Logger) *Publisher {
	cartWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.CartTopic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error().Err(err).Int("messages", len(messages)).Msg("cart event publish failed")
			}
		},
	}
	checkoutWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.CheckoutTopic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newPublisher(cartWriter, checkoutWriter, cfg, log)
}

func newPublisher(cart, checkout messageWriter, cfg PublisherConfig, log zerolog.Logger) *Publisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		cart:     cart,
		checkout: checkout,
		session:  cfg.SessionID,
		origin:   cfg.Origin,
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
}

// CartUpdated has the observer signature expected by cart.Manager.Subscribe.
func (p *Publisher) CartUpdated(c domain.Cart) {
	event := CartUpdated{
		SessionID:  p.session,
		Lines:      c.Lines,
		TotalItems: c.TotalItems,
		TotalPrice: c.TotalPrice,
		UpdatedAt:  p.now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.publish(ctx, p.cart, TypeCartUpdated, event); err != nil {
		p.log.Error().Err(err).Str("event_type", TypeCartUpdated).Msg("failed to publish event")
	}
}

func (p *Publisher) CheckoutCompleted(ctx context.Context, result domain.OrderResult, req domain.OrderRequest) {
	event := CheckoutCompleted{
		OrderID:     result.OrderID,
		Status:      result.Status,
		SessionID:   p.session,
		Origin:      p.origin,
		Lines:       req.Lines,
		Total:       req.Total,
		CompletedAt: p.now().UTC(),
	}
	// the order is already placed; a cancelled request must not drop the event
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.publish(ctx, p.checkout, TypeCheckoutCompleted, event); err != nil {
		p.log.Error().Err(err).Str("order_id", result.OrderID).Msg("failed to publish checkout event")
		return
	}
	p.log.Info().Str("order_id", result.OrderID).Msg("checkout event published")
}

func (p *Publisher) publish(ctx context.Context, w messageWriter, eventType string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(p.session), // session id keeps a session's events ordered
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventType)},
			{Key: headerOrigin, Value: []byte(p.origin)},
		},
	}
	return w.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	errCart := p.cart.Close()
	errCheckout := p.checkout.Close()
	if errCart != nil {
		return errCart
	}
	return errCheckout
}
