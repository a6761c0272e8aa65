package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// AuditLog pages through audit entries.
type AuditLog interface {
	List(ctx context.Context, p model.PageRequest) ([]model.AuditEntry, int64, error)
}

const defaultAuditPerPage = 50

type AuditHandler struct {
	Logs AuditLog
}

func NewAuditHandler(logs AuditLog) *AuditHandler {
	if logs == nil {
		panic("nil repository passed to NewAuditHandler")
	}
	return &AuditHandler{Logs: logs}
}

// List returns audit entries, newest first.
func (h *AuditHandler) List(c echo.Context) error {
	page := pageFrom(c, defaultAuditPerPage)

	ctx, cancel := storageCtx(c)
	defer cancel()

	logs, total, err := h.Logs.List(ctx, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"logs": logs, "pagination": page.Paginate(total)})
}
