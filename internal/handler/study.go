package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/radiology-portal/internal/model"
	"github.com/iliyamo/radiology-portal/internal/repository"
)

// StudyStore is the read side of the study worklist.
type StudyStore interface {
	Search(ctx context.Context, f model.StudyFilter, p model.PageRequest) ([]model.Study, int64, error)
	GetByID(ctx context.Context, id string) (model.Study, error)
}

// defaultStudiesPerPage applies when the request carries no limit.
const defaultStudiesPerPage = 20

// StudyHandler serves the study worklist.
type StudyHandler struct {
	Studies StudyStore
	Audit   Auditor
}

func NewStudyHandler(studies StudyStore, audit Auditor) *StudyHandler {
	if studies == nil || audit == nil {
		panic("nil dependency passed to NewStudyHandler")
	}
	return &StudyHandler{Studies: studies, Audit: audit}
}

// studyFilterFrom reads the query string.  Dates must be YYYY-MM-DD and the
// status one of pending, draft, signed or revised.
func studyFilterFrom(c echo.Context) (model.StudyFilter, fieldErrors) {
	f := model.StudyFilter{
		PatientName:     strings.TrimSpace(c.QueryParam("patient_name")),
		AccessionNumber: strings.TrimSpace(c.QueryParam("accession_number")),
		Modality:        strings.ToUpper(strings.TrimSpace(c.QueryParam("modality"))),
		StudyDate:       strings.TrimSpace(c.QueryParam("study_date")),
		DateFrom:        strings.TrimSpace(c.QueryParam("date_from")),
		DateTo:          strings.TrimSpace(c.QueryParam("date_to")),
		ReportStatus:    strings.ToLower(strings.TrimSpace(c.QueryParam("report_status"))),
	}

	fields := fieldErrors{}
	for name, v := range map[string]string{"study_date": f.StudyDate, "date_from": f.DateFrom, "date_to": f.DateTo} {
		if v != "" && !isDate(v) {
			fields.add(name, "must be YYYY-MM-DD")
		}
	}
	switch model.ReportStatus(f.ReportStatus) {
	case "", "pending", model.ReportDraft, model.ReportSigned, model.ReportRevised:
	default:
		fields.add("report_status", "must be pending, draft, signed or revised")
	}
	return f, fields
}

// List returns one page of studies matching the filters.
func (h *StudyHandler) List(c echo.Context) error {
	f, fields := studyFilterFrom(c)
	if len(fields) > 0 {
		return fields.respond(c)
	}
	page := pageFrom(c, defaultStudiesPerPage)

	ctx, cancel := storageCtx(c)
	defer cancel()

	studies, total, err := h.Studies.Search(ctx, f, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"studies": studies, "pagination": page.Paginate(total)})
}

// Get returns one study and records the view.
func (h *StudyHandler) Get(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))

	ctx, cancel := storageCtx(c)
	defer cancel()

	s, err := h.Studies.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "study")
	}
	if err != nil {
		return err
	}
	record(c, h.Audit, model.ActionViewStudy, model.TargetStudy, ptr(s.ID))
	return c.JSON(http.StatusOK, echo.Map{"study": s})
}
