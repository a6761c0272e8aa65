package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// TemplateRepo reads report templates and snippets.
type TemplateRepo struct{ db *sql.DB }

func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

// ListTemplates returns all templates by name; a non-empty modality keeps
// only templates for that modality plus the modality-agnostic ones.
func (r *TemplateRepo) ListTemplates(ctx context.Context, modality string) ([]model.ReportTemplate, error) {
	q := "SELECT id, unit_id, name, modality, body, created_at, updated_at FROM report_templates"
	args := []any{}
	if modality != "" {
		q += " WHERE modality = ? OR modality IS NULL"
		args = append(args, strings.ToUpper(modality))
	}
	q += " ORDER BY name ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ReportTemplate{}
	for rows.Next() {
		var (
			t      model.ReportTemplate
			unitID sql.NullString
			mod    sql.NullString
		)
		if err := rows.Scan(&t.ID, &unitID, &t.Name, &mod, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.UnitID = nullString(unitID)
		t.Modality = nullString(mod)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListSnippets returns all snippets grouped by category.
func (r *TemplateRepo) ListSnippets(ctx context.Context) ([]model.ReportSnippet, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, category, name, body FROM report_snippets ORDER BY category ASC, name ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ReportSnippet{}
	for rows.Next() {
		var s model.ReportSnippet
		if err := rows.Scan(&s.ID, &s.Category, &s.Name, &s.Body); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
