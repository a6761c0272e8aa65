package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/radiology-portal/internal/model"
	"github.com/iliyamo/radiology-portal/internal/queue"
	"github.com/iliyamo/radiology-portal/internal/repository"
	"github.com/iliyamo/radiology-portal/internal/utils"
)

type fakeUsers struct {
	users map[string]model.User
	err   error
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	if f.err != nil {
		return model.User{}, f.err
	}
	u, ok := f.users[email]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

type fakeRevoker struct{ revoked map[string]time.Time }

func (f *fakeRevoker) Revoke(_ context.Context, jti string, exp time.Time) error {
	f.revoked[jti] = exp
	return nil
}

func newAuth(t *testing.T, users ...model.User) (*AuthService, *utils.TokenIssuer, *fakeRevoker) {
	t.Helper()
	m := map[string]model.User{}
	for _, u := range users {
		m[u.Email] = u
	}
	iss, err := utils.NewTokenIssuer("secret", 7*24*time.Hour)
	require.NoError(t, err)
	rev := &fakeRevoker{revoked: map[string]time.Time{}}
	return NewAuthService(&fakeUsers{users: m}, iss, rev), iss, rev
}

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := utils.HashPassword(pw, bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestAuthenticate_Success(t *testing.T) {
	gian := model.User{ID: "usr2", Email: "gian", PasswordHash: hash(t, "123456789"), Role: model.RoleMedico, IsActive: true}
	svc, iss, _ := newAuth(t, gian)

	tok, u, err := svc.Authenticate(context.Background(), " Gian ", "123456789")
	require.NoError(t, err)
	assert.Equal(t, model.RoleMedico, u.Role)

	claims, err := iss.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "usr2", claims.UserID())
	assert.Equal(t, model.RoleMedico, claims.Role)
}

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	active := model.User{ID: "u1", Email: "a@x", PasswordHash: hash(t, "right"), Role: model.RoleViewer, IsActive: true}
	inactive := model.User{ID: "u2", Email: "b@x", PasswordHash: hash(t, "right"), Role: model.RoleViewer, IsActive: false}
	svc, _, _ := newAuth(t, active, inactive)

	for _, tc := range []struct{ email, pw string }{
		{"a@x", "wrong"},
		{"b@x", "right"},
		{"nobody@x", "right"},
		{"a@x", ""},
	} {
		_, _, err := svc.Authenticate(context.Background(), tc.email, tc.pw)
		assert.ErrorIs(t, err, ErrInvalidCredentials, tc.email)
		assert.Equal(t, "invalid credentials", err.Error())
	}
}

func TestAuthenticate_StorageErrorPassesThrough(t *testing.T) {
	iss, _ := utils.NewTokenIssuer("secret", time.Hour)
	boom := errors.New("connection refused")
	svc := NewAuthService(&fakeUsers{err: boom}, iss, &fakeRevoker{revoked: map[string]time.Time{}})

	_, _, err := svc.Authenticate(context.Background(), "a@x", "pw")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestRevoke(t *testing.T) {
	svc, _, rev := newAuth(t)
	exp := time.Now().Add(time.Hour)
	require.NoError(t, svc.Revoke(context.Background(), "jti-1", exp))
	require.NoError(t, svc.Revoke(context.Background(), "", exp))
	assert.Len(t, rev.revoked, 1)
	assert.Equal(t, exp, rev.revoked["jti-1"])
}

type fakePublisher struct {
	events []queue.AuditEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, ev queue.AuditEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeWriter struct {
	entries []model.AuditEntry
	err     error
}

func (f *fakeWriter) Insert(_ context.Context, e model.AuditEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func TestAuditService_PrefersQueue(t *testing.T) {
	pub, store := &fakePublisher{}, &fakeWriter{}
	svc := NewAuditService(pub, store, zap.NewNop())

	svc.Record(context.Background(), model.AuditEntry{Action: model.ActionLogin, TargetType: model.TargetSession})
	require.Len(t, pub.events, 1)
	assert.NotEmpty(t, pub.events[0].ID)
	assert.NotEmpty(t, pub.events[0].OccurredAt)
	assert.Empty(t, store.entries)
}

func TestAuditService_FallsBackToDatabase(t *testing.T) {
	pub, store := &fakePublisher{err: errors.New("broker down")}, &fakeWriter{}
	svc := NewAuditService(pub, store, zap.NewNop())

	svc.Record(context.Background(), model.AuditEntry{Action: model.ActionLogout, TargetType: model.TargetSession})
	require.Len(t, store.entries, 1)
	assert.False(t, store.entries[0].CreatedAt.IsZero())
}

func TestAuditService_NeverFailsCaller(t *testing.T) {
	store := &fakeWriter{err: errors.New("db down")}
	svc := NewAuditService(nil, store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() {
		svc.Record(ctx, model.AuditEntry{Action: model.ActionViewStudy, TargetType: model.TargetStudy})
	})
}
