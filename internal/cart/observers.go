package cart

import (
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type observer struct {
	id uint64
	fn func(domain.Cart)
}

// observers is the registration list behind Subscribe. Delivery order is the
// registration order.
type observers struct {
	mu     sync.RWMutex
	nextID uint64
	list   []observer
}

func (o *observers) add(fn func(domain.Cart)) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	o.list = append(o.list, observer{id: o.nextID, fn: fn})
	return o.nextID
}

func (o *observers) remove(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.list {
		if o.list[i].id == id {
			o.list = append(o.list[:i:i], o.list[i+1:]...)
			return
		}
	}
}

func (o *observers) len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.list)
}

func (o *observers) publish(cart domain.Cart) {
	o.mu.RLock()
	list := make([]observer, len(o.list))
	copy(list, o.list)
	o.mu.RUnlock()

	for _, obs := range list {
		// every observer gets its own copy
		obs.fn(cart.Clone())
	}
}
