package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/radiology-portal/internal/model"
	"github.com/iliyamo/radiology-portal/internal/repository"
)

// UnitStore persists units.
type UnitStore interface {
	List(ctx context.Context) ([]model.Unit, error)
	GetByID(ctx context.Context, id string) (model.Unit, error)
	Create(ctx context.Context, u model.Unit) (model.Unit, error)
	Update(ctx context.Context, id string, p model.UnitPatch) (model.Unit, error)
}

// UnitHandler serves unit listing and administration.
type UnitHandler struct {
	Units UnitStore
	Audit Auditor
}

func NewUnitHandler(units UnitStore, audit Auditor) *UnitHandler {
	if units == nil || audit == nil { // both are required
		panic("nil dependency passed to NewUnitHandler")
	}
	return &UnitHandler{Units: units, Audit: audit}
}

// ----- DTOs -----

type unitReq struct {
	Name           *string `json:"name"`
	Slug           *string `json:"slug"`
	IsActive       *bool   `json:"is_active"`
	OrthancBaseURL *string `json:"orthanc_base_url"`
	AETitle        *string `json:"ae_title"`
	IPAddress      *string `json:"ip_address"`
	Port           *int    `json:"port"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// defaultDICOMPort is used when a new unit omits its port.
const defaultDICOMPort = 4242

// maxAETitleLen is the DICOM limit for application entity titles.
const maxAETitleLen = 16

// validate checks the fields present in req; create additionally requires
// name and slug.
func (r *unitReq) validate(create bool) fieldErrors {
	fields := fieldErrors{}
	r.Name, r.Slug = trimmed(r.Name), trimmed(r.Slug)
	r.OrthancBaseURL, r.AETitle, r.IPAddress = trimmed(r.OrthancBaseURL), trimmed(r.AETitle), trimmed(r.IPAddress)

	if r.Name == nil || *r.Name == "" {
		if create || r.Name != nil {
			fields.add("name", "required")
		}
	}
	switch {
	case r.Slug == nil || *r.Slug == "":
		if create || r.Slug != nil {
			fields.add("slug", "required")
		}
	case !slugPattern.MatchString(*r.Slug):
		fields.add("slug", "lowercase letters, digits and dashes only")
	}
	if r.OrthancBaseURL != nil && *r.OrthancBaseURL != "" {
		u, err := url.Parse(*r.OrthancBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fields.add("orthanc_base_url", "must be an http or https URL")
		}
	}
	if r.AETitle != nil && len(*r.AETitle) > maxAETitleLen {
		fields.add("ae_title", "at most 16 characters")
	}
	if r.IPAddress != nil && *r.IPAddress != "" && net.ParseIP(*r.IPAddress) == nil {
		fields.add("ip_address", "must be an IP address")
	}
	if r.Port != nil && (*r.Port < 1 || *r.Port > 65535) {
		fields.add("port", "must be between 1 and 65535")
	}
	return fields
}

// List returns every unit.
func (h *UnitHandler) List(c echo.Context) error {
	ctx, cancel := storageCtx(c)
	defer cancel()

	units, err := h.Units.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"units": units})
}

// Create adds a unit.
func (h *UnitHandler) Create(c echo.Context) error {
	var req unitReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if fields := req.validate(true); len(fields) > 0 {
		return fields.respond(c)
	}

	u := model.Unit{Name: *req.Name, Slug: *req.Slug, IsActive: true, Port: defaultDICOMPort}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if req.OrthancBaseURL != nil {
		u.OrthancBaseURL = *req.OrthancBaseURL
	}
	if req.AETitle != nil {
		u.AETitle = *req.AETitle
	}
	if req.IPAddress != nil && *req.IPAddress != "" {
		u.IPAddress = req.IPAddress
	}
	if req.Port != nil {
		u.Port = *req.Port
	}

	ctx, cancel := storageCtx(c)
	defer cancel()

	created, err := h.Units.Create(ctx, u)
	if errors.Is(err, repository.ErrSlugExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "slug already in use"})
	}
	if err != nil {
		return err
	}
	record(c, h.Audit, model.ActionCreateUnit, model.TargetUnit, ptr(created.ID))
	return c.JSON(http.StatusCreated, echo.Map{"unit": created})
}

// Update applies the supplied fields to a unit; omitted fields keep their
// stored value.
func (h *UnitHandler) Update(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	var req unitReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if fields := req.validate(false); len(fields) > 0 {
		return fields.respond(c)
	}

	ctx, cancel := storageCtx(c)
	defer cancel()

	if _, err := h.Units.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "unit")
		}
		return err
	}

	updated, err := h.Units.Update(ctx, id, model.UnitPatch{
		Name:           req.Name,
		Slug:           req.Slug,
		IsActive:       req.IsActive,
		OrthancBaseURL: req.OrthancBaseURL,
		AETitle:        req.AETitle,
		IPAddress:      req.IPAddress,
		Port:           req.Port,
	})
	switch {
	case errors.Is(err, repository.ErrSlugExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slug already in use"})
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c, "unit")
	case err != nil:
		return err
	}
	record(c, h.Audit, model.ActionUpdateUnit, model.TargetUnit, ptr(updated.ID))
	return c.JSON(http.StatusOK, echo.Map{"unit": updated})
}
