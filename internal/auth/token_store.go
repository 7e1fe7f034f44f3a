// Package auth keeps the signed-in user's token and profile in storage.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	TokenKey = "auth_token"
	UserKey  = "auth_user"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTokenExpired     = errors.New("auth token expired")
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	LastLogin time.Time `json:"lastLogin"`
}

// TokenStore implements api.TokenSource.
type TokenStore struct {
	store storage.Store
	now   func() time.Time
	log   zerolog.Logger
}

func NewTokenStore(store storage.Store, log zerolog.Logger) *TokenStore {
	return &TokenStore{store: store, now: time.Now, log: log}
}

func (s *TokenStore) Save(ctx context.Context, token string, user User) error {
	if err := s.SaveToken(ctx, token); err != nil {
		return err
	}
	if err := storage.SetJSON(ctx, s.store, UserKey, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// SaveToken replaces the token and leaves the stored user alone.
func (s *TokenStore) SaveToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("save token: %w", ErrNotAuthenticated)
	}
	if err := s.store.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Token returns the stored token, or ErrNotAuthenticated / ErrTokenExpired.
func (s *TokenStore) Token(ctx context.Context) (string, error) {
	token, err := s.store.Get(ctx, TokenKey)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && token == "") {
		return "", ErrNotAuthenticated
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if exp, ok := ExpiresAt(token); ok && !s.now().Before(exp) {
		return "", ErrTokenExpired
	}
	return token, nil
}

func (s *TokenStore) User(ctx context.Context) (User, error) {
	user, err := storage.GetJSON[User](ctx, s.store, UserKey)
	if errors.Is(err, storage.ErrNotFound) {
		return User{}, ErrNotAuthenticated
	}
	return user, err
}

// IsAuthenticated needs both a live token and a stored user.
func (s *TokenStore) IsAuthenticated(ctx context.Context) bool {
	if _, err := s.Token(ctx); err != nil {
		if !errors.Is(err, ErrNotAuthenticated) {
			s.log.Debug().Err(err).Msg("token rejected")
		}
		return false
	}
	ok, err := s.store.Has(ctx, UserKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("auth user lookup failed")
		return false
	}
	return ok
}

// Clear logs out.
func (s *TokenStore) Clear(ctx context.Context) error {
	return errors.Join(
		s.store.Remove(ctx, TokenKey),
		s.store.Remove(ctx, UserKey),
	)
}

// ExpiresAt reads the exp claim without verifying the signature; the server
// does that. Opaque tokens and tokens without exp report false.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
