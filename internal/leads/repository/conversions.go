package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Conversion links a lead to a realized patient record.
type Conversion struct {
	ID          uuid.UUID  `json:"id"`
	LeadID      uuid.UUID  `json:"leadId"`
	StaffID     *uuid.UUID `json:"staffId,omitempty"`
	Amount      *float64   `json:"amount,omitempty"`
	Currency    string     `json:"currency"`
	ExternalRef *string    `json:"externalRef,omitempty"`
	Notes       string     `json:"notes"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type CreateConversionParams struct {
	LeadID      uuid.UUID
	StaffID     *uuid.UUID
	Amount      *float64
	Currency    string
	ExternalRef *string
	Notes       string
}

func (r *Repository) CreateConversion(ctx context.Context, params CreateConversionParams) (Conversion, error) {
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}

	var conv Conversion
	err := r.pool.QueryRow(ctx, `
		INSERT INTO GD_conversions (lead_id, staff_id, amount, currency, external_ref, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, lead_id, staff_id, amount, currency, external_ref, notes, created_at
	`, params.LeadID, params.StaffID, params.Amount, currency, params.ExternalRef, params.Notes).Scan(
		&conv.ID, &conv.LeadID, &conv.StaffID, &conv.Amount, &conv.Currency, &conv.ExternalRef, &conv.Notes, &conv.CreatedAt,
	)
	return conv, err
}

func (r *Repository) ListConversions(ctx context.Context, leadID uuid.UUID) ([]Conversion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, staff_id, amount, currency, external_ref, notes, created_at
		FROM GD_conversions
		WHERE lead_id = $1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Conversion, 0)
	for rows.Next() {
		var conv Conversion
		if err := rows.Scan(
			&conv.ID, &conv.LeadID, &conv.StaffID, &conv.Amount, &conv.Currency,
			&conv.ExternalRef, &conv.Notes, &conv.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, conv)
	}
	return items, rows.Err()
}
