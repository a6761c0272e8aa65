package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/radiology-portal/internal/metrics"
	"github.com/iliyamo/radiology-portal/internal/model"
	"github.com/iliyamo/radiology-portal/internal/repository"
)

// ReportStore reads reports and upserts them by study.
type ReportStore interface {
	GetByStudy(ctx context.Context, studyID string) (model.Report, error)
	Save(ctx context.Context, in model.ReportDraftInput) (model.Report, bool, error)
}

// ReportHandler serves report read and save.
type ReportHandler struct {
	Reports ReportStore
	Audit   Auditor
}

func NewReportHandler(reports ReportStore, audit Auditor) *ReportHandler {
	if reports == nil || audit == nil {
		panic("nil dependency passed to NewReportHandler")
	}
	return &ReportHandler{Reports: reports, Audit: audit}
}

type saveReportReq struct {
	StudyID    string  `json:"study_id"`
	Content    string  `json:"content"`
	Status     string  `json:"status"`
	TemplateID *string `json:"template_id"`
}

// GetByStudy returns the report of a study.
func (h *ReportHandler) GetByStudy(c echo.Context) error {
	studyID := strings.TrimSpace(c.Param("studyId"))

	ctx, cancel := storageCtx(c)
	defer cancel()

	rp, err := h.Reports.GetByStudy(ctx, studyID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "report")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"report": rp})
}

// Save creates the study's report or updates the existing one.  Content is
// stored as given; only its presence is checked.
func (h *ReportHandler) Save(c echo.Context) error {
	id, ok := identity(c)
	if !ok {
		return unauthorized(c)
	}
	var req saveReportReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}

	fields := fieldErrors{}
	req.StudyID = strings.TrimSpace(req.StudyID)
	if req.StudyID == "" {
		fields.add("study_id", "required")
	}
	if strings.TrimSpace(req.Content) == "" {
		fields.add("content", "required")
	}
	status, err := model.ParseReportStatus(req.Status)
	if err != nil {
		fields.add("status", "must be draft, signed or revised")
	}
	if len(fields) > 0 {
		return fields.respond(c)
	}
	tpl := trimmed(req.TemplateID)
	if tpl != nil && *tpl == "" {
		tpl = nil
	}

	ctx, cancel := storageCtx(c)
	defer cancel()

	rp, created, err := h.Reports.Save(ctx, model.ReportDraftInput{
		StudyID:    req.StudyID,
		AuthorID:   id.UserID,
		TemplateID: tpl,
		Content:    req.Content,
		Status:     status,
	})
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "study")
	}
	if err != nil {
		return err
	}

	action := model.ActionUpdateReport
	outcome := "updated"
	if created {
		action = model.ActionCreateReport
		outcome = "created"
	}
	if status == model.ReportSigned {
		action = model.ActionSignReport
	}
	metrics.ObserveReportSave(outcome)
	record(c, h.Audit, action, model.TargetReport, ptr(rp.ID))
	return c.JSON(http.StatusOK, echo.Map{"report": rp})
}
