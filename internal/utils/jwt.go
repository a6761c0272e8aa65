package utils // package utils provides helpers for session tokens and password hashing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// algorithm, expiry, malformed or missing claims.  Callers never need to
// distinguish between them.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of a session token.  The subject carries the user
// id and the ID (jti) identifies the token for revocation.
type Claims struct {
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
	UnitID *string    `json:"unit_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the token subject.
func (c *Claims) UserID() string { return c.Subject }

// SessionToken is a signed token along with its expiry.
type SessionToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenIssuer mints and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns an issuer; secret must not be empty.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid token ttl %s", ttl)
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the configured token lifetime.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Sign mints a token for the given user.
func (i *TokenIssuer) Sign(u model.User) (SessionToken, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	jti := uuid.NewString()
	claims := Claims{
		Email:  u.Email,
		Role:   u.Role,
		UnitID: u.UnitID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, ID: jti, ExpiresAt: exp}, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
// Any failure yields ErrInvalidToken.
func (i *TokenIssuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
