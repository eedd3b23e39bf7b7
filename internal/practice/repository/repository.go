// Package repository persists the practice profile. The profile is a
// singleton row; reads lazily create it so a fresh database works
// without seeding.
package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Profile is the practice's public identity, used in nurture templates
// and the booking flow.
type Profile struct {
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email"`
	BookingLink string    `json:"bookingLink"`
	Timezone    string    `json:"timezone"`
	Address     string    `json:"address"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context) (Profile, error) {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO GD_practices (id) VALUES (1) ON CONFLICT (id) DO NOTHING
	`); err != nil {
		return Profile{}, err
	}

	var p Profile
	err := r.pool.QueryRow(ctx, `
		SELECT name, phone, email, booking_link, timezone, address, updated_at
		FROM GD_practices WHERE id = 1
	`).Scan(&p.Name, &p.Phone, &p.Email, &p.BookingLink, &p.Timezone, &p.Address, &p.UpdatedAt)
	return p, err
}

type UpdateParams struct {
	Name        *string
	Phone       *string
	Email       *string
	BookingLink *string
	Timezone    *string
	Address     *string
}

func (r *Repository) Update(ctx context.Context, params UpdateParams) (Profile, error) {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO GD_practices (id) VALUES (1) ON CONFLICT (id) DO NOTHING
	`); err != nil {
		return Profile{}, err
	}

	var p Profile
	err := r.pool.QueryRow(ctx, `
		UPDATE GD_practices SET
			name = COALESCE($1, name),
			phone = COALESCE($2, phone),
			email = COALESCE($3, email),
			booking_link = COALESCE($4, booking_link),
			timezone = COALESCE($5, timezone),
			address = COALESCE($6, address),
			updated_at = now()
		WHERE id = 1
		RETURNING name, phone, email, booking_link, timezone, address, updated_at
	`, params.Name, params.Phone, params.Email, params.BookingLink, params.Timezone, params.Address).
		Scan(&p.Name, &p.Phone, &p.Email, &p.BookingLink, &p.Timezone, &p.Address, &p.UpdatedAt)
	return p, err
}
