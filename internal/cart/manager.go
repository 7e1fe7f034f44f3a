package cart

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OrderSubmitter sends an order to the backend. Its errors are returned to
// SubmitCheckout callers unchanged.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// EventPublisher is told about confirmed orders. It must not block for long
// and has no way to fail the checkout.
type EventPublisher interface {
	CheckoutCompleted(ctx context.Context, result domain.OrderResult, req domain.OrderRequest)
}

type Option func(*Manager)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func WithEvents(events EventPublisher) Option {
	return func(m *Manager) { m.events = events }
}

// WithIdempotencyKeys replaces the uuid generator used for order requests.
func WithIdempotencyKeys(next func() string) Option {
	return func(m *Manager) { m.newKey = next }
}

// Manager owns the one live cart of a session. Every mutation recomputes the
// totals, saves a snapshot and notifies subscribers, in that order.
//
// mu guards the cart and hands out delivery tickets. Snapshots are delivered
// under notifyMu strictly in ticket order, after mu is released, so observers
// may read from the manager. Observers must not mutate the cart or subscribe
// from inside the callback.
type Manager struct {
	mu   sync.Mutex
	cart domain.Cart

	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	ticket     uint64 // last ticket handed out, guarded by mu
	delivered  uint64 // last ticket delivered, guarded by notifyMu

	snapshots SnapshotStore
	orders    OrderSubmitter
	events    EventPublisher
	observers observers
	log       zerolog.Logger
	newKey    func() string

	checkingOut atomic.Bool
}

func NewManager(snapshots SnapshotStore, orders OrderSubmitter, opts ...Option) *Manager {
	m := &Manager{
		snapshots: snapshots,
		orders:    orders,
		log:       zerolog.Nop(),
		newKey:    uuid.NewString,
	}
	m.notifyCond = sync.NewCond(&m.notifyMu)
	for _, opt := range opts {
		opt(m)
	}
	m.initialize()
	return m
}

func (m *Manager) initialize() {
	m.cart = domain.NewCart()
	if restored, ok := m.snapshots.Load(); ok {
		m.cart = restored
		m.log.Info().Int("lines", len(restored.Lines)).Msg("cart restored from snapshot")
	}
	m.cart.Recompute()
}

// AddItem merges line into the cart. An existing line keeps its own stock
// snapshot as the ceiling; anything above it is silently dropped.
func (m *Manager) AddItem(line domain.CartLine) error {
	if err := line.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if i := m.cart.Find(line.ProductID); i >= 0 {
		existing := &m.cart.Lines[i]
		existing.Quantity = domain.Clamp(existing.Quantity+line.Quantity, 1, existing.AvailableStock)
	} else {
		if line.AvailableStock < 1 {
			m.mu.Unlock()
			return &domain.StockExceededError{ProductID: line.ProductID, Quantity: line.Quantity, AvailableStock: line.AvailableStock}
		}
		line.Quantity = domain.Clamp(line.Quantity, 1, line.AvailableStock)
		m.cart.Lines = append(m.cart.Lines, line)
	}
	m.commitLocked()
	return nil
}

// RemoveItem is a no-op for an unknown productID.
func (m *Manager) RemoveItem(productID int64) {
	m.mu.Lock()
	if !m.cart.Remove(productID) {
		m.mu.Unlock()
		return
	}
	m.commitLocked()
}

// UpdateQuantity clamps quantity to [0, stock]; zero removes the line.
func (m *Manager) UpdateQuantity(productID int64, quantity int) {
	m.mu.Lock()
	i := m.cart.Find(productID)
	if i < 0 {
		m.mu.Unlock()
		return
	}

	line := &m.cart.Lines[i]
	q := domain.Clamp(quantity, 0, line.AvailableStock)
	switch {
	case q == 0:
		m.cart.Remove(productID)
	case q == line.Quantity:
		m.mu.Unlock()
		return
	default:
		line.Quantity = q
	}
	m.commitLocked()
}

// IncrementQuantity never goes past the line's stock snapshot.
func (m *Manager) IncrementQuantity(productID int64) {
	m.mu.Lock()
	i := m.cart.Find(productID)
	if i < 0 || m.cart.Lines[i].Quantity >= m.cart.Lines[i].AvailableStock {
		m.mu.Unlock()
		return
	}
	m.cart.Lines[i].Quantity++
	m.commitLocked()
}

// DecrementQuantity removes the line when it would drop below one.
func (m *Manager) DecrementQuantity(productID int64) {
	m.mu.Lock()
	i := m.cart.Find(productID)
	if i < 0 {
		m.mu.Unlock()
		return
	}
	if m.cart.Lines[i].Quantity > 1 {
		m.cart.Lines[i].Quantity--
	} else {
		m.cart.Remove(productID)
	}
	m.commitLocked()
}

// Clear empties the cart and removes the persisted snapshot.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.cart = domain.NewCart()
	m.snapshots.Clear()
	m.emitLocked()
}

func (m *Manager) Totals() domain.Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart.Totals()
}

// Snapshot returns a copy of the current cart.
func (m *Manager) Snapshot() domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart.Clone()
}

func (m *Manager) Items() []domain.CartLine {
	return m.Snapshot().Lines
}

func (m *Manager) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart.IsEmpty()
}

func (m *Manager) ItemCount() int {
	return m.Totals().TotalItems
}

func (m *Manager) Total() decimal.Decimal {
	return m.Totals().TotalPrice
}

// PrepareCheckoutPayload maps the lines to {productId, quantity} pairs plus
// the current total.
func (m *Manager) PrepareCheckoutPayload() (domain.CheckoutPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payloadLocked()
}

// SubmitCheckout validates the cart, submits the order and clears the cart on
// success. Only one submission may be in flight; a concurrent call fails with
// ErrCheckoutInProgress. On failure the cart is left exactly as it was and the
// submitter's error is returned as is.
func (m *Manager) SubmitCheckout(ctx context.Context, shipping domain.ShippingInfo) (domain.OrderResult, error) {
	if !m.checkingOut.CompareAndSwap(false, true) {
		return domain.OrderResult{}, domain.ErrCheckoutInProgress
	}
	defer m.checkingOut.Store(false)

	m.mu.Lock()
	payload, err := m.payloadLocked()
	if err == nil {
		err = m.checkStockLocked()
	}
	m.mu.Unlock()
	if err != nil {
		return domain.OrderResult{}, err
	}

	req := domain.OrderRequest{
		Lines:          payload.Lines,
		Total:          payload.Total,
		ShippingInfo:   shipping,
		IdempotencyKey: m.newKey(),
	}

	result, err := m.orders.SubmitOrder(ctx, req)
	if err != nil {
		m.log.Warn().Err(err).Str("idempotency_key", req.IdempotencyKey).Msg("order submission failed, cart kept")
		return domain.OrderResult{}, err
	}

	m.log.Info().Str("order_id", result.OrderID).Int("lines", len(req.Lines)).Msg("order submitted")
	m.Clear()
	if m.events != nil {
		m.events.CheckoutCompleted(ctx, result, req)
	}
	return result, nil
}

// Subscribe calls fn with the current cart right away and then after every
// change until the returned func is called.
func (m *Manager) Subscribe(fn func(domain.Cart)) (unsubscribe func()) {
	m.mu.Lock()
	current := m.cart.Clone()
	ticket := m.nextTicketLocked()
	m.mu.Unlock()

	// registering in the ticket's turn keeps older snapshots from reaching fn
	var id uint64
	m.deliver(ticket, func() {
		id = m.observers.add(fn)
		fn(current)
	})

	var once sync.Once
	return func() {
		once.Do(func() { m.observers.remove(id) })
	}
}

// SubscribeChan is the channel form of Subscribe. When the reader falls
// behind, older snapshots are dropped in favour of the newest one. The channel
// is closed by the returned func.
func (m *Manager) SubscribeChan(buf int) (<-chan domain.Cart, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan domain.Cart, buf)
	unsubscribe := m.Subscribe(func(c domain.Cart) {
		for {
			select {
			case ch <- c:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.notifyMu.Lock()
			defer m.notifyMu.Unlock()
			unsubscribe()
			close(ch)
		})
	}
}

func (m *Manager) payloadLocked() (domain.CheckoutPayload, error) {
	if m.cart.IsEmpty() {
		return domain.CheckoutPayload{}, domain.ErrEmptyCart
	}
	lines := make([]domain.OrderLine, len(m.cart.Lines))
	for i, l := range m.cart.Lines {
		lines[i] = domain.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return domain.CheckoutPayload{Lines: lines, Total: m.cart.TotalPrice}, nil
}

func (m *Manager) checkStockLocked() error {
	for _, l := range m.cart.Lines {
		if l.Quantity > l.AvailableStock {
			return &domain.StockExceededError{ProductID: l.ProductID, Quantity: l.Quantity, AvailableStock: l.AvailableStock}
		}
	}
	return nil
}

// commitLocked finishes a mutation: recompute, persist, then notify.
// It releases mu.
func (m *Manager) commitLocked() {
	m.cart.Recompute()
	m.snapshots.Save(m.cart.Clone())
	m.emitLocked()
}

// emitLocked releases mu and delivers the new cart to observers.
func (m *Manager) emitLocked() {
	current := m.cart.Clone()
	ticket := m.nextTicketLocked()
	m.mu.Unlock()
	m.deliver(ticket, func() { m.observers.publish(current) })
}

func (m *Manager) nextTicketLocked() uint64 {
	m.ticket++
	return m.ticket
}

// deliver waits for every earlier ticket, then runs fn under notifyMu.
func (m *Manager) deliver(ticket uint64, fn func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	for m.delivered+1 != ticket {
		m.notifyCond.Wait()
	}
	defer func() {
		m.delivered = ticket
		m.notifyCond.Broadcast()
	}()
	fn()
}
