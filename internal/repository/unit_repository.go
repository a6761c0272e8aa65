package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// UnitRepo reads and writes the `units` table.
type UnitRepo struct{ db *sql.DB }

func NewUnitRepo(db *sql.DB) *UnitRepo { return &UnitRepo{db: db} }

const unitColumns = `id, name, slug, is_active, orthanc_base_url, ae_title, ip_address, port, created_at, updated_at`

func scanUnit(s rowScanner) (model.Unit, error) {
	var (
		u  model.Unit
		ip sql.NullString
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Slug, &u.IsActive, &u.OrthancBaseURL, &u.AETitle, &ip, &u.Port,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.Unit{}, err
	}
	u.IPAddress = nullString(ip)
	return u, nil
}

// List returns every unit ordered by name.
func (r *UnitRepo) List(ctx context.Context) ([]model.Unit, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+unitColumns+" FROM units ORDER BY name ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Unit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetByID returns ErrNotFound when the unit does not exist.
func (r *UnitRepo) GetByID(ctx context.Context, id string) (model.Unit, error) {
	u, err := scanUnit(r.db.QueryRowContext(ctx, "SELECT "+unitColumns+" FROM units WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Unit{}, ErrNotFound
	}
	return u, err
}

// Create inserts a unit; a taken slug yields ErrSlugExists.
func (r *UnitRepo) Create(ctx context.Context, u model.Unit) (model.Unit, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO units (id, name, slug, is_active, orthanc_base_url, ae_title, ip_address, port)
		 VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.Name, u.Slug, u.IsActive, u.OrthancBaseURL, u.AETitle, strArg(u.IPAddress), u.Port)
	if err != nil {
		if isDuplicate(err) {
			return model.Unit{}, ErrSlugExists
		}
		return model.Unit{}, err
	}
	return r.GetByID(ctx, u.ID)
}

// Update applies a coalescing patch.
func (r *UnitRepo) Update(ctx context.Context, id string, p model.UnitPatch) (model.Unit, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE units SET
			name             = COALESCE(?, name),
			slug             = COALESCE(?, slug),
			is_active        = COALESCE(?, is_active),
			orthanc_base_url = COALESCE(?, orthanc_base_url),
			ae_title         = COALESCE(?, ae_title),
			ip_address       = COALESCE(?, ip_address),
			port             = COALESCE(?, port),
			updated_at       = CURRENT_TIMESTAMP(3)
		 WHERE id = ?`,
		strArg(p.Name), strArg(p.Slug), boolArg(p.IsActive), strArg(p.OrthancBaseURL),
		strArg(p.AETitle), strArg(p.IPAddress), intArg(p.Port), id)
	if err != nil {
		if isDuplicate(err) {
			return model.Unit{}, ErrSlugExists
		}
		return model.Unit{}, err
	}
	return r.GetByID(ctx, id)
}
