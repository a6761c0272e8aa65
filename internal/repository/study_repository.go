package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// StudyRepo reads the `studies` table.  Studies are imported from the
// imaging source; the portal only ever writes report_status, and only from
// ReportRepo.Save.
type StudyRepo struct{ db *sql.DB }

func NewStudyRepo(db *sql.DB) *StudyRepo { return &StudyRepo{db: db} }

const studyColumns = `s.id, s.unit_id, un.name, s.study_instance_uid, s.patient_name, s.patient_id,
	s.accession_number, DATE_FORMAT(s.study_date, '%Y-%m-%d'), TIME_FORMAT(s.study_time, '%H:%i:%s'),
	s.modalities, s.description, s.report_status, s.created_at, s.updated_at`

const studyFrom = ` FROM studies s LEFT JOIN units un ON un.id = s.unit_id`

func scanStudy(s rowScanner) (model.Study, error) {
	var (
		st         model.Study
		unitID     sql.NullString
		unitName   sql.NullString
		modalities string
		status     sql.NullString
	)
	if err := s.Scan(&st.ID, &unitID, &unitName, &st.StudyInstanceUID, &st.PatientName, &st.PatientID,
		&st.AccessionNumber, &st.StudyDate, &st.StudyTime, &modalities, &st.Description, &status,
		&st.CreatedAt, &st.UpdatedAt); err != nil {
		return model.Study{}, err
	}
	st.UnitID = nullString(unitID)
	st.UnitName = nullString(unitName)
	st.Modalities = model.SplitModalities(modalities)
	if status.Valid {
		rs := model.ReportStatus(status.String)
		st.ReportStatus = &rs
	}
	return st, nil
}

// escapeLike makes user input literal inside a LIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// studyWhere builds the shared WHERE clause of the page and count queries.
func studyWhere(f model.StudyFilter) (string, []any) {
	where := []string{}
	args := []any{}

	if f.PatientName != "" {
		where = append(where, "LOWER(s.patient_name) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(f.PatientName))+"%")
	}
	if f.AccessionNumber != "" {
		where = append(where, "s.accession_number LIKE ?")
		args = append(args, "%"+escapeLike(f.AccessionNumber)+"%")
	}
	if f.Modality != "" {
		where = append(where, "FIND_IN_SET(?, s.modalities) > 0")
		args = append(args, strings.ToUpper(f.Modality))
	}
	if f.StudyDate != "" {
		where = append(where, "s.study_date = ?")
		args = append(args, f.StudyDate)
	}
	if f.DateFrom != "" {
		where = append(where, "s.study_date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		where = append(where, "s.study_date <= ?")
		args = append(args, f.DateTo)
	}
	switch strings.ToLower(f.ReportStatus) {
	case "":
	case "pending":
		where = append(where, "s.report_status IS NULL")
	default:
		where = append(where, "s.report_status = ?")
		args = append(args, strings.ToLower(f.ReportStatus))
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	return cond, args
}

// Search returns one page of studies matching f plus the total match count.
// A page past the end yields an empty, non-nil slice.
func (r *StudyRepo) Search(ctx context.Context, f model.StudyFilter, p model.PageRequest) ([]model.Study, int64, error) {
	cond, args := studyWhere(f)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM studies s WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := "SELECT " + studyColumns + studyFrom + " WHERE " + cond +
		" ORDER BY s.study_date DESC, s.study_time DESC, s.id ASC LIMIT ? OFFSET ?"
	argsData := append(append([]any{}, args...), p.PerPage, p.Offset())

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Study, 0, p.PerPage)
	for rows.Next() {
		st, err := scanStudy(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByID returns ErrNotFound when the study does not exist.
func (r *StudyRepo) GetByID(ctx context.Context, id string) (model.Study, error) {
	st, err := scanStudy(r.db.QueryRowContext(ctx, "SELECT "+studyColumns+studyFrom+" WHERE s.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Study{}, ErrNotFound
	}
	return st, err
}

// Stats counts the worklist for the dashboard.  Pending means no report
// yet, matching the "pending" listing filter.
func (r *StudyRepo) Stats(ctx context.Context) (model.DashboardStats, error) {
	var s model.DashboardStats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(report_status IS NULL), 0),
			COALESCE(SUM(report_status = 'signed'), 0),
			COALESCE(SUM(study_date = UTC_DATE()), 0)
		 FROM studies`).Scan(&s.TotalStudies, &s.PendingReports, &s.SignedReports, &s.StudiesToday)
	if err != nil {
		return model.DashboardStats{}, err
	}
	return s, nil
}
