package client

import (
	"context"
	"errors"
	"sync"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// TokenStore persists the session token between processes.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Session tracks who is logged in through a Client.  Any 401 the client
// sees ends the session, both in memory and in the store.
type Session struct {
	client *Client
	store  TokenStore

	mu   sync.RWMutex
	user *model.User
}

// NewSession binds a session to c.  store may be nil for an in-memory
// session.
func NewSession(c *Client, store TokenStore) *Session {
	if c == nil {
		panic("nil client passed to NewSession")
	}
	s := &Session{client: c, store: store}
	c.OnUnauthorized(s.clear)
	return s
}

// Client exposes the underlying API client.
func (s *Session) Client() *Client { return s.client }

// Login authenticates and persists the new token.
func (s *Session) Login(ctx context.Context, email, password string) (model.User, error) {
	u, err := s.client.Login(ctx, email, password)
	if err != nil {
		return model.User{}, err
	}
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(s.client.Token()); err != nil {
			return u, err
		}
	}
	return u, nil
}

// Restore rehydrates the session from the stored token by asking the
// server who it belongs to.  It returns false, nil when there is no token
// or the server no longer accepts it.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	tok, err := s.store.Load()
	if err != nil {
		return false, err
	}
	if tok == "" {
		return false, nil
	}
	s.client.SetToken(tok)

	u, err := s.client.Me(ctx)
	if errors.Is(err, ErrUnauthorized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return true, nil
}

// Logout revokes the token on the server and always forgets it locally.
// The server error, if any, is returned after the local clear.
func (s *Session) Logout(ctx context.Context) error {
	err := s.client.Logout(ctx)
	s.clear()
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	return err
}

// User returns the logged-in account.
func (s *Session) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

func (s *Session) Authenticated() bool {
	_, ok := s.User()
	return ok
}

// Can reports whether the logged-in role carries capability c.  It is a
// display hint; the server decides.
func (s *Session) Can(c model.Capability) bool {
	u, ok := s.User()
	return ok && u.Role.Can(c)
}

func (s *Session) clear() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	s.client.SetToken("")
	if s.store != nil {
		_ = s.store.Clear()
	}
}
