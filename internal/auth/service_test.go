package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPoster struct {
	endpoint string
	body     any
	authed   bool
	resp     string
	err      error
}

func (m *mockPoster) Post(_ context.Context, endpoint string, body, out any) error {
	m.endpoint = endpoint
	m.body = body
	if m.err != nil {
		return m.err
	}
	return json.Unmarshal([]byte(m.resp), out)
}

func (m *mockPoster) PostAuth(ctx context.Context, endpoint string, body, out any) error {
	m.authed = true
	return m.Post(ctx, endpoint, body, out)
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	token := signedToken(t, time.Now().Add(time.Hour))
	poster := &mockPoster{resp: `{"token":"` + token + `","user":{"id":4,"username":"ada"}}`}
	tokens := NewTokenStore(storage.NewMemoryStore(), zerolog.Nop())
	svc := NewService(poster, tokens)

	resp, err := svc.Login(ctx, Credentials{Username: "ada", Password: "pw"})

	require.NoError(t, err)
	assert.Equal(t, "auth/login", poster.endpoint)
	assert.Equal(t, Credentials{Username: "ada", Password: "pw"}, poster.body)
	assert.Equal(t, int64(4), resp.User.ID)
	assert.True(t, tokens.IsAuthenticated(ctx))

	user, err := svc.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)

	require.NoError(t, svc.Logout(ctx))
	_, err = svc.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestService_Register(t *testing.T) {
	poster := &mockPoster{resp: `{"token":"opaque","user":{"id":9}}`}
	svc := NewService(poster, NewTokenStore(storage.NewMemoryStore(), zerolog.Nop()))

	_, err := svc.Register(context.Background(), Registration{Username: "grace", Email: "g@example.com", Password: "pw"})

	require.NoError(t, err)
	assert.Equal(t, "auth/register", poster.endpoint)
}

func TestService_LoginFailures(t *testing.T) {
	ctx := context.Background()
	rejected := errors.New("invalid credentials")

	tokens := NewTokenStore(storage.NewMemoryStore(), zerolog.Nop())
	_, err := NewService(&mockPoster{err: rejected}, tokens).Login(ctx, Credentials{})
	assert.ErrorIs(t, err, rejected)
	assert.False(t, tokens.IsAuthenticated(ctx))

	_, err = NewService(&mockPoster{resp: `{"user":{"id":1}}`}, tokens).Login(ctx, Credentials{})
	assert.Error(t, err)
	assert.False(t, tokens.IsAuthenticated(ctx))
}

func TestService_Refresh(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenStore(storage.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, tokens.Save(ctx, signedToken(t, time.Now().Add(time.Minute)), User{ID: 4, Username: "ada"}))

	fresh := signedToken(t, time.Now().Add(2*time.Hour))
	poster := &mockPoster{resp: `{"token":"` + fresh + `"}`}
	resp, err := NewService(poster, tokens).Refresh(ctx)

	require.NoError(t, err)
	assert.Equal(t, "auth/refresh", poster.endpoint)
	assert.True(t, poster.authed)
	assert.Equal(t, fresh, resp.Token)

	stored, err := tokens.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, stored)

	user, err := tokens.User(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username, "user survives a refresh")
}

func TestService_RefreshFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("signed out", func(t *testing.T) {
		poster := &mockPoster{resp: `{"token":"opaque"}`}
		_, err := NewService(poster, NewTokenStore(storage.NewMemoryStore(), zerolog.Nop())).Refresh(ctx)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.Empty(t, poster.endpoint, "no request without a token")
	})

	t.Run("rejected keeps old token", func(t *testing.T) {
		tokens := NewTokenStore(storage.NewMemoryStore(), zerolog.Nop())
		require.NoError(t, tokens.Save(ctx, "old", User{ID: 1}))
		rejected := errors.New("refresh denied")

		_, err := NewService(&mockPoster{err: rejected}, tokens).Refresh(ctx)
		assert.ErrorIs(t, err, rejected)

		token, err := tokens.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "old", token)
	})

	t.Run("empty token", func(t *testing.T) {
		tokens := NewTokenStore(storage.NewMemoryStore(), zerolog.Nop())
		require.NoError(t, tokens.Save(ctx, "old", User{ID: 1}))

		_, err := NewService(&mockPoster{resp: `{}`}, tokens).Refresh(ctx)
		assert.Error(t, err)
	})
}
