package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// TemplateStore lists report templates and snippets.
type TemplateStore interface {
	ListTemplates(ctx context.Context, modality string) ([]model.ReportTemplate, error)
	ListSnippets(ctx context.Context) ([]model.ReportSnippet, error)
}

// TemplateHandler serves the report editor's reference data.
type TemplateHandler struct {
	Templates TemplateStore
}

func NewTemplateHandler(templates TemplateStore) *TemplateHandler {
	if templates == nil {
		panic("nil repository passed to NewTemplateHandler")
	}
	return &TemplateHandler{Templates: templates}
}

// List returns templates, optionally narrowed to one modality.
func (h *TemplateHandler) List(c echo.Context) error {
	ctx, cancel := storageCtx(c)
	defer cancel()

	items, err := h.Templates.ListTemplates(ctx, strings.ToUpper(strings.TrimSpace(c.QueryParam("modality"))))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"templates": items})
}

// Snippets returns every snippet.
func (h *TemplateHandler) Snippets(c echo.Context) error {
	ctx, cancel := storageCtx(c)
	defer cancel()

	items, err := h.Templates.ListSnippets(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"snippets": items})
}
