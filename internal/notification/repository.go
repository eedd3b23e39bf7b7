// Package notification delivers in-app notifications to staff. It
// subscribes to domain events so the leads and nurture modules never
// know who gets told about what.
package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("notification not found")

// Notification is one in-app message. A nil StaffID addresses the whole
// practice.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	StaffID      *uuid.UUID `json:"staffId,omitempty"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Category     string     `json:"category"`
	ResourceType *string    `json:"resourceType,omitempty"`
	ResourceID   *uuid.UUID `json:"resourceId,omitempty"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (n Notification) IsRead() bool { return n.ReadAt != nil }

type CreateParams struct {
	StaffID      *uuid.UUID
	Title        string
	Content      string
	Category     string
	ResourceType *string
	ResourceID   *uuid.UUID
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationColumns = `
	id, staff_id, title, content, category, resource_type, resource_id, read_at, created_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.StaffID, &n.Title, &n.Content, &n.Category,
		&n.ResourceType, &n.ResourceID, &n.ReadAt, &n.CreatedAt)
	return n, err
}

func (r *Repository) Create(ctx context.Context, params CreateParams) (Notification, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO GD_notifications (staff_id, title, content, category, resource_type, resource_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationColumns,
		params.StaffID, params.Title, params.Content, params.Category, params.ResourceType, params.ResourceID,
	)
	return scanNotification(row)
}

// List returns notifications visible to a staff member: their own plus
// practice-wide ones, newest first.
func (r *Repository) List(ctx context.Context, staffID uuid.UUID, unreadOnly bool, limit, offset int) ([]Notification, int, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	filter := ``
	if unreadOnly {
		filter = ` AND read_at IS NULL`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM GD_notifications
		WHERE (staff_id = $1 OR staff_id IS NULL)`+filter,
		staffID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM GD_notifications
		WHERE (staff_id = $1 OR staff_id IS NULL)`+filter+`
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, staffID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}
	return notifications, total, rows.Err()
}

func (r *Repository) CountUnread(ctx context.Context, staffID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM GD_notifications
		WHERE (staff_id = $1 OR staff_id IS NULL) AND read_at IS NULL
	`, staffID).Scan(&count)
	return count, err
}

func (r *Repository) MarkRead(ctx context.Context, staffID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE GD_notifications SET read_at = now()
		WHERE id = $2 AND (staff_id = $1 OR staff_id IS NULL) AND read_at IS NULL
	`, staffID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, staffID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE GD_notifications SET read_at = now()
		WHERE (staff_id = $1 OR staff_id IS NULL) AND read_at IS NULL
	`, staffID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
