package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/radiology-portal/internal/model"
)

func testUser() model.User {
	unit := "u1"
	return model.User{ID: "usr2", Email: "gian", Role: model.RoleMedico, UnitID: &unit}
}

func TestTokenRoundTrip(t *testing.T) {
	iss, err := NewTokenIssuer("secret", 7*24*time.Hour)
	require.NoError(t, err)

	tok, err := iss.Sign(testUser())
	require.NoError(t, err)
	assert.NotEmpty(t, tok.ID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), tok.ExpiresAt, time.Minute)

	claims, err := iss.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "usr2", claims.UserID())
	assert.Equal(t, "gian", claims.Email)
	assert.Equal(t, model.RoleMedico, claims.Role)
	require.NotNil(t, claims.UnitID)
	assert.Equal(t, "u1", *claims.UnitID)
	assert.Equal(t, tok.ID, claims.ID)
}

func TestVerify_RejectsTampering(t *testing.T) {
	iss, _ := NewTokenIssuer("secret", time.Hour)
	tok, err := iss.Sign(testUser())
	require.NoError(t, err)

	parts := strings.Split(tok.Token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, err = iss.Verify(parts[0] + "." + parts[1] + "." + string(sig))
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, _ := NewTokenIssuer("other-secret", time.Hour)
	_, err = other.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsExpired(t *testing.T) {
	iss, _ := NewTokenIssuer("secret", time.Hour)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := iss.Sign(testUser())
	require.NoError(t, err)

	iss.now = time.Now
	_, err = iss.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	iss, _ := NewTokenIssuer("secret", time.Hour)
	claims := Claims{
		Role: model.RoleAdminMaster,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "x",
			Subject:   "usr1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = iss.Verify(hs512)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsUnknownRole(t *testing.T) {
	iss, _ := NewTokenIssuer("secret", time.Hour)
	u := testUser()
	u.Role = "root"
	tok, err := iss.Sign(u)
	require.NoError(t, err)
	_, err = iss.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenIssuer_Validation(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour)
	assert.Error(t, err)
	_, err = NewTokenIssuer("s", 0)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("123456789", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(h, "123456789"))
	assert.False(t, VerifyPassword(h, "12345678"))
	assert.False(t, VerifyPassword("not-a-hash", "123456789"))

	BurnPasswordCheck("anything")
}
