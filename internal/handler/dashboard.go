package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/radiology-portal/internal/model"
)

type StatsStore interface {
	Stats(ctx context.Context) (model.DashboardStats, error)
}

type RecentActivity interface {
	Recent(ctx context.Context, n int) ([]model.AuditEntry, error)
}

// recentActivityLimit is how many audit entries the dashboard shows.
const recentActivityLimit = 5

type DashboardHandler struct {
	Studies StatsStore
	Audit   RecentActivity
}

func NewDashboardHandler(studies StatsStore, audit RecentActivity) *DashboardHandler {
	if studies == nil || audit == nil {
		panic("nil repository passed to NewDashboardHandler")
	}
	return &DashboardHandler{Studies: studies, Audit: audit}
}

// Stats returns worklist counters and the latest audit entries.
func (h *DashboardHandler) Stats(c echo.Context) error {
	ctx, cancel := storageCtx(c)
	defer cancel()

	stats, err := h.Studies.Stats(ctx)
	if err != nil {
		return err
	}
	recent, err := h.Audit.Recent(ctx, recentActivityLimit)
	if err != nil {
		return err
	}
	stats.RecentActivity = recent
	return c.JSON(http.StatusOK, stats)
}
