package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// ReportRepo reads and writes the `reports` table.
type ReportRepo struct{ db *sql.DB }

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

const reportSelect = `SELECT r.id, r.study_id, r.unit_id, r.author_user_id, u.full_name, r.template_id,
	r.content, r.status, r.created_at, r.updated_at, r.signed_at
	FROM reports r LEFT JOIN users u ON u.id = r.author_user_id`

func scanReport(s rowScanner) (model.Report, error) {
	var (
		rp         model.Report
		unitID     sql.NullString
		authorName sql.NullString
		templateID sql.NullString
		status     string
		signedAt   sql.NullTime
	)
	if err := s.Scan(&rp.ID, &rp.StudyID, &unitID, &rp.AuthorUserID, &authorName, &templateID,
		&rp.Content, &status, &rp.CreatedAt, &rp.UpdatedAt, &signedAt); err != nil {
		return model.Report{}, err
	}
	rp.UnitID = nullString(unitID)
	rp.AuthorName = nullString(authorName)
	rp.TemplateID = nullString(templateID)
	rp.Status = model.ReportStatus(status)
	if signedAt.Valid {
		t := signedAt.Time
		rp.SignedAt = &t
	}
	return rp, nil
}

// GetByStudy returns the report of a study, or ErrNotFound.
func (r *ReportRepo) GetByStudy(ctx context.Context, studyID string) (model.Report, error) {
	rp, err := scanReport(r.db.QueryRowContext(ctx, reportSelect+" WHERE r.study_id = ?", studyID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, ErrNotFound
	}
	return rp, err
}

// upsertReport relies on uq_reports_study.  signed_at is assigned before
// status because MySQL applies the assignments left to right.
const upsertReport = `INSERT INTO reports
		(id, study_id, unit_id, author_user_id, template_id, content, status, signed_at)
	VALUES (?,?,?,?,?,?,?, IF(? = 'signed', CURRENT_TIMESTAMP(3), NULL))
	ON DUPLICATE KEY UPDATE
		signed_at   = CASE WHEN VALUES(status) = 'signed' AND status <> 'signed'
		                   THEN CURRENT_TIMESTAMP(3) ELSE signed_at END,
		content     = VALUES(content),
		status      = VALUES(status),
		template_id = COALESCE(VALUES(template_id), template_id),
		updated_at  = CURRENT_TIMESTAMP(3)`

// Save inserts the report of in.StudyID or updates the existing one in
// place, keeping its id and created_at.  The study row is locked for the
// duration of the transaction and its report_status follows the report.
// created is true when a new row was inserted.  A missing study yields
// ErrNotFound.
func (r *ReportRepo) Save(ctx context.Context, in model.ReportDraftInput) (rp model.Report, created bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Report{}, false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var unitID sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT unit_id FROM studies WHERE id = ? FOR UPDATE", in.StudyID).Scan(&unitID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, false, ErrNotFound
	}
	if err != nil {
		return model.Report{}, false, err
	}

	status := string(in.Status)
	res, err := tx.ExecContext(ctx, upsertReport,
		uuid.NewString(), in.StudyID, unitID, in.AuthorID, strArg(in.TemplateID), in.Content, status, status)
	if err != nil {
		return model.Report{}, false, err
	}
	// 1 = inserted, 2 = updated (0 would mean unchanged, which updated_at prevents)
	n, err := res.RowsAffected()
	if err != nil {
		return model.Report{}, false, err
	}
	created = n == 1

	if _, err := tx.ExecContext(ctx,
		"UPDATE studies SET report_status = ?, updated_at = CURRENT_TIMESTAMP(3) WHERE id = ?",
		status, in.StudyID); err != nil {
		return model.Report{}, false, err
	}

	rp, err = scanReport(tx.QueryRowContext(ctx, reportSelect+" WHERE r.study_id = ?", in.StudyID))
	if err != nil {
		return model.Report{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return model.Report{}, false, err
	}
	committed = true
	return rp, created, nil
}
