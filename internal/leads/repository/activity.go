package repository

import (
	"context"
	"encoding/json"
	"time"

	"growthdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// Activity log action names. The log is append-only; these tags are the
// contract with audit consumers.
const (
	ActionCaptured       = "captured"
	ActionMerged         = "merged"
	ActionScored         = "scored"
	ActionStatusChanged  = "status_changed"
	ActionAssigned       = "assigned"
	ActionEngagement     = "engagement"
	ActionNurtureStarted = "nurture_started"
	ActionNurtureStep    = "nurture_step"
	ActionNurturePaused  = "nurture_paused"
	ActionNurtureResumed = "nurture_resumed"
	ActionNurtureDone    = "nurture_completed"
	ActionEscalated      = "escalated"
	ActionConverted      = "converted"
	ActionLost           = "lost"
	ActionReactivated    = "reactivated"
	ActionDetailsUpdated = "details_updated"
)

// Activity is one append-only audit entry on a lead.
type Activity struct {
	ID        uuid.UUID       `json:"id"`
	LeadID    uuid.UUID       `json:"leadId"`
	ActorType string          `json:"actorType"`
	ActorID   *uuid.UUID      `json:"actorId,omitempty"`
	Action    string          `json:"action"`
	Summary   string          `json:"summary"`
	OldValue  *string         `json:"oldValue,omitempty"`
	NewValue  *string         `json:"newValue,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type AddActivityParams struct {
	LeadID   uuid.UUID
	Actor    domain.Actor
	Action   string
	Summary  string
	OldValue *string
	NewValue *string
	Meta     map[string]any
}

func (r *Repository) AddActivity(ctx context.Context, params AddActivityParams) error {
	var metaJSON []byte
	if len(params.Meta) > 0 {
		encoded, err := json.Marshal(params.Meta)
		if err != nil {
			return err
		}
		metaJSON = encoded
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO GD_lead_activity (lead_id, actor_type, actor_id, action, summary, old_value, new_value, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, params.LeadID, string(params.Actor.Type), params.Actor.UserID, params.Action, params.Summary,
		params.OldValue, params.NewValue, metaJSON)
	return err
}

func (r *Repository) ListActivity(ctx context.Context, leadID uuid.UUID, limit, offset int) ([]Activity, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, actor_type, actor_id, action, summary, old_value, new_value, meta, created_at
		FROM GD_lead_activity
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, leadID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		var item Activity
		if err := rows.Scan(
			&item.ID, &item.LeadID, &item.ActorType, &item.ActorID, &item.Action,
			&item.Summary, &item.OldValue, &item.NewValue, &item.Meta, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
