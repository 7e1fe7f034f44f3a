package auth

import (
	"context"
	"fmt"
	"time"
)

// Poster is the slice of api.Client the service needs.
type Poster interface {
	Post(ctx context.Context, endpoint string, body, out any) error
	PostAuth(ctx context.Context, endpoint string, body, out any) error
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type RefreshResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service signs users in against the backend and keeps the result in the
// token store.
type Service struct {
	api    Poster
	tokens *TokenStore
}

func NewService(api Poster, tokens *TokenStore) *Service {
	return &Service{api: api, tokens: tokens}
}

func (s *Service) Login(ctx context.Context, creds Credentials) (LoginResponse, error) {
	return s.authenticate(ctx, "auth/login", creds)
}

func (s *Service) Register(ctx context.Context, reg Registration) (LoginResponse, error) {
	return s.authenticate(ctx, "auth/register", reg)
}

// Refresh trades the current token for a new one and keeps the stored user.
func (s *Service) Refresh(ctx context.Context) (RefreshResponse, error) {
	if !s.tokens.IsAuthenticated(ctx) {
		return RefreshResponse{}, ErrNotAuthenticated
	}
	var resp RefreshResponse
	if err := s.api.PostAuth(ctx, "auth/refresh", struct{}{}, &resp); err != nil {
		return RefreshResponse{}, err
	}
	if resp.Token == "" {
		return RefreshResponse{}, fmt.Errorf("auth/refresh: empty token in response")
	}
	if err := s.tokens.SaveToken(ctx, resp.Token); err != nil {
		return RefreshResponse{}, err
	}
	return resp, nil
}

func (s *Service) Logout(ctx context.Context) error {
	return s.tokens.Clear(ctx)
}

func (s *Service) CurrentUser(ctx context.Context) (User, error) {
	if !s.tokens.IsAuthenticated(ctx) {
		return User{}, ErrNotAuthenticated
	}
	return s.tokens.User(ctx)
}

func (s *Service) authenticate(ctx context.Context, endpoint string, body any) (LoginResponse, error) {
	var resp LoginResponse
	if err := s.api.Post(ctx, endpoint, body, &resp); err != nil {
		return LoginResponse{}, err
	}
	if resp.Token == "" {
		return LoginResponse{}, fmt.Errorf("%s: empty token in response", endpoint)
	}
	if err := s.tokens.Save(ctx, resp.Token, resp.User); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}
