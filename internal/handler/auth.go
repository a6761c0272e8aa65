package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/radiology-portal/internal/middleware"
	"github.com/iliyamo/radiology-portal/internal/model"
	"github.com/iliyamo/radiology-portal/internal/repository"
	"github.com/iliyamo/radiology-portal/internal/service"
	"github.com/iliyamo/radiology-portal/internal/utils"
)

// Authenticator is the slice of service.AuthService used by AuthHandler.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (utils.SessionToken, model.User, error)
	Revoke(ctx context.Context, jti string, exp time.Time) error
	TokenTTL() time.Duration
}

// ProfileStore reads and updates the caller's own account.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	Update(ctx context.Context, id string, p model.UserPatch) (model.User, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth         Authenticator
	Users        ProfileStore
	Audit        Auditor
	SecureCookie bool
	BcryptCost   int
}

func NewAuthHandler(auth Authenticator, users ProfileStore, audit Auditor, secureCookie bool, bcryptCost int) *AuthHandler {
	if auth == nil || users == nil || audit == nil {
		panic("nil dependency passed to NewAuthHandler")
	}
	return &AuthHandler{Auth: auth, Users: users, Audit: audit, SecureCookie: secureCookie, BcryptCost: bcryptCost}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateMeReq struct {
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
}

// minPasswordLen applies to every password set through the API.
const minPasswordLen = 8

// sessionCookie builds the token cookie; a negative maxAge clears it.
func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

// Login checks credentials and sets the session cookie.  The body carries
// the user only; the token never appears in it.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.Email = strings.TrimSpace(req.Email)
	fields := fieldErrors{}
	if req.Email == "" {
		fields.add("email", "required")
	}
	if req.Password == "" {
		fields.add("password", "required")
	}
	if len(fields) > 0 {
		return fields.respond(c)
	}

	ctx, cancel := storageCtx(c)
	defer cancel()

	tok, u, err := h.Auth.Authenticate(ctx, req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return err
	}

	c.SetCookie(h.sessionCookie(tok.Token, int(h.Auth.TokenTTL().Seconds())))

	uid := u.ID
	h.Audit.Record(c.Request().Context(), model.AuditEntry{
		UserID:     &uid,
		UnitID:     u.UnitID,
		Action:     model.ActionLogin,
		TargetType: model.TargetSession,
		TargetID:   ptr(tok.ID),
		IPAddress:  clientIP(c),
	})
	return c.JSON(http.StatusOK, echo.Map{"user": u})
}

// Logout revokes the presented token and clears the cookie.  The cookie is
// cleared even when revocation fails; the failure is logged.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, ok := identity(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := storageCtx(c)
	defer cancel()
	if err := h.Auth.Revoke(ctx, id.TokenID, id.ExpiresAt); err != nil {
		middleware.Logger(c).Warn("token revocation failed", zap.String("jti", id.TokenID), zap.Error(err))
	}

	c.SetCookie(h.sessionCookie("", -1))
	record(c, h.Audit, model.ActionLogout, model.TargetSession, ptr(id.TokenID))
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me returns the caller's current account.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := identity(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := storageCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "user")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u})
}

// UpdateMe changes the caller's display name and/or password.  Role, unit
// and active flag are not self-service.
func (h *AuthHandler) UpdateMe(c echo.Context) error {
	id, ok := identity(c)
	if !ok {
		return unauthorized(c)
	}
	var req updateMeReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}

	fields := fieldErrors{}
	var patch model.UserPatch
	if name := trimmed(req.FullName); name != nil {
		if *name == "" {
			fields.add("full_name", "must not be empty")
		}
		patch.FullName = name
	}
	if req.Password != nil && len(*req.Password) < minPasswordLen {
		fields.add("password", "must be at least 8 characters")
	}
	if len(fields) > 0 {
		return fields.respond(c)
	}
	if req.Password != nil {
		hash, err := utils.HashPassword(*req.Password, h.BcryptCost)
		if err != nil {
			return err
		}
		patch.PasswordHash = &hash
	}

	ctx, cancel := storageCtx(c)
	defer cancel()

	var (
		u   model.User
		err error
	)
	if patch.Empty() {
		u, err = h.Users.GetByID(ctx, id.UserID)
	} else {
		u, err = h.Users.Update(ctx, id.UserID, patch)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "user")
	}
	if err != nil {
		return err
	}
	if !patch.Empty() {
		record(c, h.Audit, model.ActionUpdateUser, model.TargetUser, ptr(u.ID))
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u})
}
