package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/radiology-portal/internal/ids"
	"github.com/iliyamo/radiology-portal/internal/model"
)

// AuditRepo appends to and pages through `audit_logs`.  There is no update
// or delete.
type AuditRepo struct{ db *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// Insert appends one entry.  Missing id and timestamp are filled in.
func (r *AuditRepo) Insert(ctx context.Context, e model.AuditEntry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, unit_id, action, target_type, target_id, ip_address, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, strArg(e.UserID), strArg(e.UnitID), string(e.Action), e.TargetType,
		strArg(e.TargetID), strArg(e.IPAddress), e.CreatedAt)
	if err != nil && isDuplicate(err) {
		// redelivered event, already stored
		return nil
	}
	return err
}

const auditSelect = `SELECT a.id, a.user_id, u.email, a.unit_id, a.action, a.target_type, a.target_id,
	a.ip_address, a.created_at
	FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id`

func (r *AuditRepo) query(ctx context.Context, q string, args ...any) ([]model.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AuditEntry{}
	for rows.Next() {
		var (
			e                     model.AuditEntry
			userID, email, unitID sql.NullString
			targetID, ip          sql.NullString
			action                string
		)
		if err := rows.Scan(&e.ID, &userID, &email, &unitID, &action, &e.TargetType, &targetID,
			&ip, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = model.AuditAction(action)
		e.UserID = nullString(userID)
		e.UserEmail = nullString(email)
		e.UnitID = nullString(unitID)
		e.TargetID = nullString(targetID)
		e.IPAddress = nullString(ip)
		out = append(out, e)
	}
	return out, rows.Err()
}

// List returns one page of entries, newest first.
func (r *AuditRepo) List(ctx context.Context, p model.PageRequest) ([]model.AuditEntry, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs").Scan(&total); err != nil {
		return nil, 0, err
	}
	out, err := r.query(ctx, auditSelect+" ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?",
		p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Recent returns the n newest entries.
func (r *AuditRepo) Recent(ctx context.Context, n int) ([]model.AuditEntry, error) {
	return r.query(ctx, auditSelect+" ORDER BY a.created_at DESC, a.id DESC LIMIT ?", n)
}
