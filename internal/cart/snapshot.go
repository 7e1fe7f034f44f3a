package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const SnapshotKey = "shopping_cart"

// SnapshotStore persists the cart between sessions. Every method is best
// effort: failures are handled behind this interface.
type SnapshotStore interface {
	Load() (domain.Cart, bool)
	Save(cart domain.Cart)
	Clear()
}

type snapshotLine struct {
	ProductID      int64           `json:"productId"`
	Name           string          `json:"name"`
	ImageURL       string          `json:"imageUrl"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Quantity       int             `json:"quantity"`
	AvailableStock int             `json:"availableStock"`
}

type snapshot struct {
	Lines []snapshotLine `json:"lines"`
}

// StorageSnapshots keeps the cart under SnapshotKey in a storage.Store.
type StorageSnapshots struct {
	store   storage.Store
	key     string
	timeout time.Duration
	log     zerolog.Logger
}

func NewStorageSnapshots(store storage.Store, log zerolog.Logger) *StorageSnapshots {
	return &StorageSnapshots{
		store:   store,
		key:     SnapshotKey,
		timeout: time.Second,
		log:     log,
	}
}

// Load returns false when nothing usable is stored: absent, unreadable and
// malformed snapshots all restore as an empty cart.
func (s *StorageSnapshots) Load() (domain.Cart, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	snap, err := storage.GetJSON[snapshot](ctx, s.store, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Cart{}, false
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("cart snapshot unreadable, starting empty")
		return domain.Cart{}, false
	}

	cart, err := fromSnapshot(snap)
	if err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("cart snapshot malformed, starting empty")
		return domain.Cart{}, false
	}
	return cart, true
}

func (s *StorageSnapshots) Save(cart domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := storage.SetJSON(ctx, s.store, s.key, toSnapshot(cart)); err != nil {
		s.log.Error().Err(err).Str("key", s.key).Msg("cart snapshot save failed")
	}
}

func (s *StorageSnapshots) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.store.Remove(ctx, s.key); err != nil {
		s.log.Error().Err(err).Str("key", s.key).Msg("cart snapshot clear failed")
	}
}

func toSnapshot(cart domain.Cart) snapshot {
	snap := snapshot{Lines: make([]snapshotLine, len(cart.Lines))}
	for i, l := range cart.Lines {
		snap.Lines[i] = snapshotLine(l)
	}
	return snap
}

// fromSnapshot validates structure only. A quantity above the stock snapshot
// is kept so checkout can report it.
func fromSnapshot(snap snapshot) (domain.Cart, error) {
	cart := domain.NewCart()
	seen := make(map[int64]struct{}, len(snap.Lines))
	for i, l := range snap.Lines {
		switch {
		case l.ProductID <= 0:
			return domain.Cart{}, fmt.Errorf("line %d: invalid product id %d", i, l.ProductID)
		case l.Quantity < 1:
			return domain.Cart{}, fmt.Errorf("line %d: invalid quantity %d", i, l.Quantity)
		case l.AvailableStock < 0:
			return domain.Cart{}, fmt.Errorf("line %d: invalid stock %d", i, l.AvailableStock)
		case l.UnitPrice.IsNegative():
			return domain.Cart{}, fmt.Errorf("line %d: negative unit price", i)
		}
		if _, dup := seen[l.ProductID]; dup {
			return domain.Cart{}, fmt.Errorf("line %d: duplicate product id %d", i, l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
		cart.Lines = append(cart.Lines, domain.CartLine(l))
	}
	cart.Recompute()
	return cart, nil
}
