package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// UserRepo reads and writes the `users` table.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `u.id, u.email, u.password_hash, u.full_name, u.role, u.unit_id, un.name,
	u.is_active, u.created_at, u.updated_at
	FROM users u LEFT JOIN units un ON un.id = u.unit_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u        model.User
		role     string
		unitID   sql.NullString
		unitName sql.NullString
	)
	if err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &role, &unitID, &unitName,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.UnitID = nullString(unitID)
	u.UnitName = nullString(unitName)
	return u, nil
}

// NormalizeEmail trims and lower-cases a login identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" WHERE u.email = ? LIMIT 1", NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" WHERE u.id = ? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// List returns one page of users, newest first.  A non-nil unitID limits
// the listing to that unit.
func (r *UserRepo) List(ctx context.Context, unitID *string, p model.PageRequest) ([]model.User, int64, error) {
	cond, args := "1=1", []any{}
	if unitID != nil {
		cond, args = "u.unit_id = ?", append(args, *unitID)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users u WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" WHERE "+cond+" ORDER BY u.created_at DESC, u.id ASC LIMIT ? OFFSET ?",
		append(args, p.PerPage, p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.User, 0, p.PerPage)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Create inserts a user and returns the stored row.  PasswordHash must
// already be a bcrypt digest.
func (r *UserRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, full_name, role, unit_id, is_active)
		 VALUES (?,?,?,?,?,?,?)`,
		u.ID, NormalizeEmail(u.Email), u.PasswordHash, u.FullName, string(u.Role), strArg(u.UnitID), u.IsActive)
	if err != nil {
		if isDuplicate(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	return r.GetByID(ctx, u.ID)
}

// Update applies a coalescing patch: nil fields keep their stored value.
func (r *UserRepo) Update(ctx context.Context, id string, p model.UserPatch) (model.User, error) {
	if !p.Empty() {
		var email, role any
		if p.Email != nil {
			email = NormalizeEmail(*p.Email)
		}
		if p.Role != nil {
			role = string(*p.Role)
		}
		_, err := r.db.ExecContext(ctx,
			`UPDATE users SET
				email         = COALESCE(?, email),
				full_name     = COALESCE(?, full_name),
				role          = COALESCE(?, role),
				unit_id       = COALESCE(?, unit_id),
				is_active     = COALESCE(?, is_active),
				password_hash = COALESCE(?, password_hash),
				sessions_valid_from = IF(?, CURRENT_TIMESTAMP(3), sessions_valid_from),
				updated_at    = CURRENT_TIMESTAMP(3)
			 WHERE id = ?`,
			email, strArg(p.FullName), role, strArg(p.UnitID), boolArg(p.IsActive), strArg(p.PasswordHash),
			p.EndsSessions(), id)
		if err != nil {
			if isDuplicate(err) {
				return model.User{}, ErrEmailExists
			}
			return model.User{}, err
		}
	}
	return r.GetByID(ctx, id)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func strArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolArg(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func intArg(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
