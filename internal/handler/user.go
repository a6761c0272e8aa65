package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/radiology-portal/internal/middleware"
	"github.com/iliyamo/radiology-portal/internal/model"
	"github.com/iliyamo/radiology-portal/internal/repository"
	"github.com/iliyamo/radiology-portal/internal/utils"
)

// UserStore persists accounts.
type UserStore interface {
	List(ctx context.Context, unitID *string, p model.PageRequest) ([]model.User, int64, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	Update(ctx context.Context, id string, p model.UserPatch) (model.User, error)
}

// UnitLookup confirms a unit exists before it is assigned to a user.
type UnitLookup interface {
	GetByID(ctx context.Context, id string) (model.Unit, error)
}

const defaultUsersPerPage = 50

// UserHandler administers accounts.  admin_master manages every account;
// unit_admin is confined to the accounts of its own unit and can never
// grant admin_master.
type UserHandler struct {
	Users      UserStore
	Units      UnitLookup
	Audit      Auditor
	BcryptCost int
}

func NewUserHandler(users UserStore, units UnitLookup, audit Auditor, bcryptCost int) *UserHandler {
	if users == nil || units == nil || audit == nil {
		panic("nil dependency passed to NewUserHandler")
	}
	return &UserHandler{Users: users, Units: units, Audit: audit, BcryptCost: bcryptCost}
}

// ----- DTOs -----

type userReq struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	UnitID   *string `json:"unit_id"`
	IsActive *bool   `json:"is_active"`
}

// validate checks the present fields; create additionally requires email,
// password, full_name and role.  The parsed role is returned.
func (r *userReq) validate(create bool) (*model.Role, fieldErrors) {
	fields := fieldErrors{}
	r.Email, r.FullName, r.UnitID = trimmed(r.Email), trimmed(r.FullName), trimmed(r.UnitID)
	if r.UnitID != nil && *r.UnitID == "" {
		r.UnitID = nil
	}

	if r.Email == nil || *r.Email == "" {
		if create || r.Email != nil {
			fields.add("email", "required")
		}
	}
	if r.FullName == nil || *r.FullName == "" {
		if create || r.FullName != nil {
			fields.add("full_name", "required")
		}
	}
	switch {
	case r.Password == nil:
		if create {
			fields.add("password", "required")
		}
	case len(*r.Password) < minPasswordLen:
		fields.add("password", "must be at least 8 characters")
	}

	var role *model.Role
	switch {
	case r.Role == nil:
		if create {
			fields.add("role", "required")
		}
	default:
		parsed, err := model.ParseRole(*r.Role)
		if err != nil {
			fields.add("role", "must be admin_master, unit_admin, medico or viewer")
		} else {
			role = &parsed
		}
	}
	return role, fields
}

// scopeUnit returns the unit a unit_admin is confined to; nil for
// admin_master.
func scopeUnit(id middleware.Identity) (*string, bool) {
	if id.Role == model.RoleAdminMaster {
		return nil, true
	}
	if id.UnitID == nil || *id.UnitID == "" {
		return nil, false
	}
	return id.UnitID, true
}

func sameUnit(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// checkUnit validates that unitID names an existing unit.
func (h *UserHandler) checkUnit(ctx context.Context, unitID *string) (fieldErrors, error) {
	if unitID == nil {
		return nil, nil
	}
	_, err := h.Units.GetByID(ctx, *unitID)
	if errors.Is(err, repository.ErrNotFound) {
		return fieldErrors{"unit_id": "unknown unit"}, nil
	}
	return nil, err
}

// List returns accounts; unit_admin sees only its own unit.
func (h *UserHandler) List(c echo.Context) error {
	id, ok := identity(c)
	if !ok {
		return unauthorized(c)
	}
	scope, ok := scopeUnit(id)
	if !ok {
		return forbidden(c)
	}
	if scope == nil {
		if q := strings.TrimSpace(c.QueryParam("unit_id")); q != "" {
			scope = &q
		}
	}
	page := pageFrom(c, defaultUsersPerPage)

	ctx, cancel := storageCtx(c)
	defer cancel()

	users, total, err := h.Users.List(ctx, scope, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users, "pagination": page.Paginate(total)})
}

// Create adds an account.  The password is hashed before storage.
func (h *UserHandler) Create(c echo.Context) error {
	id, ok := identity(c)
	if !ok {
		return unauthorized(c)
	}
	var req userReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	role, fields := req.validate(true)
	if len(fields) > 0 {
		return fields.respond(c)
	}

	scope, ok := scopeUnit(id)
	if !ok {
		return forbidden(c)
	}
	if scope != nil {
		if *role == model.RoleAdminMaster {
			return forbidden(c)
		}
		if req.UnitID == nil {
			req.UnitID = scope
		} else if !sameUnit(req.UnitID, scope) {
			return forbidden(c)
		}
	}

	hash, err := utils.HashPassword(*req.Password, h.BcryptCost)
	if err != nil {
		return err
	}

	ctx, cancel := storageCtx(c)
	defer cancel()

	if fe, err := h.checkUnit(ctx, req.UnitID); err != nil {
		return err
	} else if len(fe) > 0 {
		return fe.respond(c)
	}

	u := model.User{
		Email:        *req.Email,
		PasswordHash: hash,
		FullName:     *req.FullName,
		Role:         *role,
		UnitID:       req.UnitID,
		IsActive:     true,
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}

	created, err := h.Users.Create(ctx, u)
	if errors.Is(err, repository.ErrEmailExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already in use"})
	}
	if err != nil {
		return err
	}
	record(c, h.Audit, model.ActionCreateUser, model.TargetUser, ptr(created.ID))
	return c.JSON(http.StatusCreated, echo.Map{"user": created})
}

// Update applies the supplied fields to an account.
func (h *UserHandler) Update(c echo.Context) error {
	id, ok := identity(c)
	if !ok {
		return unauthorized(c)
	}
	targetID := strings.TrimSpace(c.Param("id"))
	var req userReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	role, fields := req.validate(false)
	if len(fields) > 0 {
		return fields.respond(c)
	}
	scope, ok := scopeUnit(id)
	if !ok {
		return forbidden(c)
	}

	ctx, cancel := storageCtx(c)
	defer cancel()

	target, err := h.Users.GetByID(ctx, targetID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "user")
	}
	if err != nil {
		return err
	}
	if scope != nil {
		switch {
		case !sameUnit(target.UnitID, scope):
			return forbidden(c)
		case target.Role == model.RoleAdminMaster:
			return forbidden(c)
		case role != nil && *role == model.RoleAdminMaster:
			return forbidden(c)
		case req.UnitID != nil && !sameUnit(req.UnitID, scope):
			return forbidden(c)
		}
	}
	if fe, err := h.checkUnit(ctx, req.UnitID); err != nil {
		return err
	} else if len(fe) > 0 {
		return fe.respond(c)
	}

	patch := model.UserPatch{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     role,
		UnitID:   req.UnitID,
		IsActive: req.IsActive,
	}
	if req.Password != nil {
		hash, err := utils.HashPassword(*req.Password, h.BcryptCost)
		if err != nil {
			return err
		}
		patch.PasswordHash = &hash
	}

	updated, err := h.Users.Update(ctx, targetID, patch)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already in use"})
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c, "user")
	case err != nil:
		return err
	}
	if !patch.Empty() {
		record(c, h.Audit, model.ActionUpdateUser, model.TargetUser, ptr(updated.ID))
	}
	return c.JSON(http.StatusOK, echo.Map{"user": updated})
}
