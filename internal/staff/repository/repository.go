// Package repository persists the practice staff roster.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("staff member not found")

// Member is one staff roster entry. OpenLeads and ConversionRate are
// computed per query, never stored.
type Member struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	Email          *string   `json:"email,omitempty"`
	Active         bool      `json:"active"`
	LeadsAssigned  int       `json:"leadsAssigned"`
	LeadsConverted int       `json:"leadsConverted"`
	OpenLeads      int       `json:"openLeads"`
	ConversionRate float64   `json:"conversionRate"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// memberColumns joins live load from GD_leads: open leads are assigned
// leads that have not reached a terminal status.
const memberColumns = `
	s.id, s.name, s.role, s.email, s.active, s.leads_assigned, s.leads_converted,
	COALESCE(o.open_count, 0),
	CASE WHEN s.leads_assigned > 0
	     THEN s.leads_converted::float / s.leads_assigned::float
	     ELSE 0 END,
	s.created_at, s.updated_at`

const openLeadsJoin = `
	LEFT JOIN (
		SELECT assigned_staff_id, COUNT(*) AS open_count
		FROM GD_leads
		WHERE assigned_staff_id IS NOT NULL
		  AND status NOT IN ('CONVERTED', 'LOST')
		GROUP BY assigned_staff_id
	) o ON o.assigned_staff_id = s.id`

func scanMember(row pgx.Row) (Member, error) {
	var m Member
	err := row.Scan(
		&m.ID, &m.Name, &m.Role, &m.Email, &m.Active, &m.LeadsAssigned, &m.LeadsConverted,
		&m.OpenLeads, &m.ConversionRate, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Member, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+memberColumns+`
		FROM GD_staff s`+openLeadsJoin+`
		WHERE s.id = $1
	`, id)
	member, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, ErrNotFound
	}
	return member, err
}

// List returns the roster, active members first, then by name.
func (r *Repository) List(ctx context.Context, includeInactive bool) ([]Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM GD_staff s` + openLeadsJoin
	if !includeInactive {
		query += `
		WHERE s.active`
	}
	query += `
		ORDER BY s.active DESC, s.name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// ListActive returns active members only, for assignment candidacy.
func (r *Repository) ListActive(ctx context.Context) ([]Member, error) {
	return r.List(ctx, false)
}

type CreateParams struct {
	ID    uuid.UUID
	Name  string
	Role  string
	Email *string
}

func (r *Repository) Create(ctx context.Context, params CreateParams) (Member, error) {
	if params.ID == uuid.Nil {
		params.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO GD_staff (id, name, role, email)
		VALUES ($1, $2, $3, $4)
	`, params.ID, params.Name, params.Role, params.Email)
	if err != nil {
		return Member{}, err
	}
	return r.GetByID(ctx, params.ID)
}

type UpdateParams struct {
	Name   *string
	Role   *string
	Email  *string
	Active *bool
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (Member, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE GD_staff SET
			name = COALESCE($2, name),
			role = COALESCE($3, role),
			email = COALESCE($4, email),
			active = COALESCE($5, active),
			updated_at = now()
		WHERE id = $1
	`, id, params.Name, params.Role, params.Email, params.Active)
	if err != nil {
		return Member{}, err
	}
	if tag.RowsAffected() == 0 {
		return Member{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *Repository) IncrementAssigned(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE GD_staff SET leads_assigned = leads_assigned + 1, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) IncrementConverted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE GD_staff SET leads_converted = leads_converted + 1, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
