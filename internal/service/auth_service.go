// Package service holds the business flows that sit between handlers and
// repositories: credential checks, token issuing and audit delivery.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/radiology-portal/internal/metrics"
	"github.com/iliyamo/radiology-portal/internal/model"
	"github.com/iliyamo/radiology-portal/internal/repository"
	"github.com/iliyamo/radiology-portal/internal/utils"
)

// ErrInvalidCredentials is returned for an unknown login, a wrong password
// and an inactive account alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserLookup finds accounts by login.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

// TokenRevoker stores logged-out token ids.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, exp time.Time) error
}

// AuthService checks credentials and issues session tokens.
type AuthService struct {
	users   UserLookup
	tokens  *utils.TokenIssuer
	revoker TokenRevoker
}

func NewAuthService(users UserLookup, tokens *utils.TokenIssuer, revoker TokenRevoker) *AuthService {
	if users == nil || tokens == nil || revoker == nil {
		panic("nil dependency passed to NewAuthService")
	}
	return &AuthService{users: users, tokens: tokens, revoker: revoker}
}

// Authenticate verifies email and password and mints a session token.
// Storage failures are returned as is so the caller can answer 503.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (utils.SessionToken, model.User, error) {
	u, err := s.users.GetByEmail(ctx, repository.NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPasswordCheck(password)
		metrics.ObserveLogin("invalid")
		return utils.SessionToken{}, model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		metrics.ObserveLogin("error")
		return utils.SessionToken{}, model.User{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) || !u.IsActive {
		metrics.ObserveLogin("invalid")
		return utils.SessionToken{}, model.User{}, ErrInvalidCredentials
	}

	tok, err := s.tokens.Sign(u)
	if err != nil {
		metrics.ObserveLogin("error")
		return utils.SessionToken{}, model.User{}, err
	}
	metrics.ObserveLogin("success")
	return tok, u, nil
}

// Revoke makes a token unusable until it would have expired anyway.
func (s *AuthService) Revoke(ctx context.Context, jti string, exp time.Time) error {
	if jti == "" {
		return nil
	}
	return s.revoker.Revoke(ctx, jti, exp)
}

// TokenTTL is the lifetime of issued tokens, used for the cookie Max-Age.
func (s *AuthService) TokenTTL() time.Duration { return s.tokens.TTL() }
