package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Store is the key-value persistence used for cart snapshots and auth tokens.
// Implementations return ErrNotFound from Get when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Close() error
}

// GetJSON decodes the value stored under key into a T.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("unmarshal %q failed: %w", key, err)
	}
	return v, nil
}

func SetJSON[T any](ctx context.Context, s Store, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q failed: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

type expiring[T any] struct {
	Value  T     `json:"value"`
	Expiry int64 `json:"expiry"` // unix millis
}

// SetWithExpiry stores value wrapped with an absolute expiry ttl from now.
func SetWithExpiry[T any](ctx context.Context, s Store, key string, value T, ttl time.Duration) error {
	return SetJSON(ctx, s, key, expiring[T]{Value: value, Expiry: time.Now().Add(ttl).UnixMilli()})
}

// GetWithExpiry returns ErrNotFound for expired entries and removes them.
func GetWithExpiry[T any](ctx context.Context, s Store, key string) (T, error) {
	var zero T
	item, err := GetJSON[expiring[T]](ctx, s, key)
	if err != nil {
		return zero, err
	}
	if time.Now().UnixMilli() > item.Expiry {
		if err := s.Remove(ctx, key); err != nil {
			return zero, fmt.Errorf("remove expired %q failed: %w", key, err)
		}
		return zero, ErrNotFound
	}
	return item.Value, nil
}
