// Package repository persists nurture runs and their scheduled messages
// in Postgres. Scheduled messages follow an outbox lifecycle: pending ->
// enqueued -> sent, with canceled and failed as the off-ramps.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrRunNotFound     = errors.New("nurture run not found")
	ErrMessageNotFound = errors.New("scheduled message not found")
)

// RunStatus is the lifecycle state of a sequence run.
type RunStatus string

const (
	RunActive    RunStatus = "active"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunCanceled  RunStatus = "canceled"
)

// MessageStatus is the outbox state of a scheduled message.
type MessageStatus string

const (
	MessagePending  MessageStatus = "pending"
	MessageEnqueued MessageStatus = "enqueued"
	MessageSent     MessageStatus = "sent"
	MessageCanceled MessageStatus = "canceled"
	MessageFailed   MessageStatus = "failed"
)

// Run is one lead's progress through a sequence template. The engagement
// counters are scoped to this run, unlike the lifetime counters on the
// lead itself.
type Run struct {
	ID             uuid.UUID  `json:"id"`
	LeadID         uuid.UUID  `json:"leadId"`
	SequenceKey    string     `json:"sequenceKey"`
	CatalogVersion int        `json:"catalogVersion"`
	Status         RunStatus  `json:"status"`
	CurrentStep    int        `json:"currentStep"`
	TotalSteps     int        `json:"totalSteps"`
	Opens          int        `json:"opens"`
	Clicks         int        `json:"clicks"`
	Replies        int        `json:"replies"`
	Escalated      bool       `json:"escalated"`
	StartedAt      time.Time  `json:"startedAt"`
	LastStepSentAt *time.Time `json:"lastStepSentAt,omitempty"`
	PausedAt       *time.Time `json:"pausedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CanceledAt     *time.Time `json:"canceledAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// IsLive reports whether the run still owns its lead's nurture slot.
func (r Run) IsLive() bool {
	return r.Status == RunActive || r.Status == RunPaused
}

// Message is a rendered step waiting for (or past) delivery.
type Message struct {
	ID         uuid.UUID     `json:"id"`
	RunID      uuid.UUID     `json:"runId"`
	LeadID     uuid.UUID     `json:"leadId"`
	StepNumber int           `json:"stepNumber"`
	Channel    string        `json:"channel"`
	Subject    string        `json:"subject,omitempty"`
	Body       string        `json:"body"`
	SendAt     time.Time     `json:"sendAt"`
	Status     MessageStatus `json:"status"`
	Attempts   int           `json:"attempts"`
	LastError  *string       `json:"lastError,omitempty"`
	SentAt     *time.Time    `json:"sentAt,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const runColumns = `
	id, lead_id, sequence_key, catalog_version, status, current_step, total_steps,
	opens, clicks, replies, escalated,
	started_at, last_step_sent_at, paused_at, completed_at, canceled_at, created_at, updated_at`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	var status string
	err := row.Scan(
		&run.ID, &run.LeadID, &run.SequenceKey, &run.CatalogVersion, &status, &run.CurrentStep, &run.TotalSteps,
		&run.Opens, &run.Clicks, &run.Replies, &run.Escalated,
		&run.StartedAt, &run.LastStepSentAt, &run.PausedAt, &run.CompletedAt, &run.CanceledAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	return run, nil
}

type CreateRunParams struct {
	LeadID         uuid.UUID
	SequenceKey    string
	CatalogVersion int
	TotalSteps     int
	StartStep      int // 1 for a fresh run, higher when re-entering a sequence
}

func (r *Repository) CreateRun(ctx context.Context, params CreateRunParams) (Run, error) {
	if params.StartStep < 1 {
		params.StartStep = 1
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO GD_nurture_runs (lead_id, sequence_key, catalog_version, total_steps, current_step)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+runColumns,
		params.LeadID, params.SequenceKey, params.CatalogVersion, params.TotalSteps, params.StartStep,
	)
	return scanRun(row)
}

func (r *Repository) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM GD_nurture_runs WHERE id = $1
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

// GetLiveRunByLead returns the lead's active or paused run. The partial
// unique index guarantees at most one exists.
func (r *Repository) GetLiveRunByLead(ctx context.Context, leadID uuid.UUID) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM GD_nurture_runs
		WHERE lead_id = $1 AND status IN ('active', 'paused')
	`, leadID)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

// ListRunsByLead returns a lead's run history, newest first.
func (r *Repository) ListRunsByLead(ctx context.Context, leadID uuid.UUID) ([]Run, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM GD_nurture_runs
		WHERE lead_id = $1
		ORDER BY started_at DESC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AdvanceRun records a sent step and moves the pointer to the next one.
func (r *Repository) AdvanceRun(ctx context.Context, id uuid.UUID, nextStep int, sentAt time.Time) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_nurture_runs
		SET current_step = $2, last_step_sent_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'active'
		RETURNING `+runColumns,
		id, nextStep, sentAt,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

func (r *Repository) CompleteRun(ctx context.Context, id uuid.UUID, sentAt time.Time) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_nurture_runs
		SET status = 'completed', last_step_sent_at = $2, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'active'
		RETURNING `+runColumns,
		id, sentAt,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

func (r *Repository) PauseRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_nurture_runs
		SET status = 'paused', paused_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'active'
		RETURNING `+runColumns,
		id,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

func (r *Repository) ResumeRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_nurture_runs
		SET status = 'active', paused_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'paused'
		RETURNING `+runColumns,
		id,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

func (r *Repository) CancelRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_nurture_runs
		SET status = 'canceled', canceled_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('active', 'paused')
		RETURNING `+runColumns,
		id,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

// IncrementRunEngagement bumps the run-scoped engagement counters.
func (r *Repository) IncrementRunEngagement(ctx context.Context, id uuid.UUID, opens, clicks, replies int) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_nurture_runs
		SET opens = opens + $2, clicks = clicks + $3, replies = replies + $4, updated_at = now()
		WHERE id = $1
		RETURNING `+runColumns,
		id, opens, clicks, replies,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

func (r *Repository) MarkRunEscalated(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE GD_nurture_runs SET escalated = true, updated_at = now() WHERE id = $1
	`, id)
	return err
}

const messageColumns = `
	id, run_id, lead_id, step_number, channel, subject, body, send_at,
	status, attempts, last_error, sent_at, created_at, updated_at`

func scanMessage(row pgx.Row) (Message, error) {
	var msg Message
	var status string
	err := row.Scan(
		&msg.ID, &msg.RunID, &msg.LeadID, &msg.StepNumber, &msg.Channel, &msg.Subject, &msg.Body, &msg.SendAt,
		&status, &msg.Attempts, &msg.LastError, &msg.SentAt, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	msg.Status = MessageStatus(status)
	return msg, nil
}

type InsertMessageParams struct {
	RunID      uuid.UUID
	LeadID     uuid.UUID
	StepNumber int
	Channel    string
	Subject    string
	Body       string
	SendAt     time.Time
}

func (r *Repository) InsertMessage(ctx context.Context, params InsertMessageParams) (Message, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO GD_scheduled_messages (run_id, lead_id, step_number, channel, subject, body, send_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+messageColumns,
		params.RunID, params.LeadID, params.StepNumber, params.Channel, params.Subject, params.Body, params.SendAt,
	)
	return scanMessage(row)
}

func (r *Repository) GetMessage(ctx context.Context, id uuid.UUID) (Message, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM GD_scheduled_messages WHERE id = $1
	`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ClaimDue moves pending messages to enqueued and returns them, locking
// rows so two dispatchers never claim the same message.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]Message, error) {
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM GD_scheduled_messages
			WHERE status = 'pending'
			ORDER BY send_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE GD_scheduled_messages m
		SET status = 'enqueued', updated_at = now()
		FROM due
		WHERE m.id = due.id
		RETURNING `+qualified(messageColumns, "m"),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkSent finalizes a delivered message. Returns false when the message
// was no longer in a sendable state, which means a cancellation won the
// race.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE GD_scheduled_messages
		SET status = 'sent', sent_at = $2, last_error = NULL, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'enqueued')
	`, id, sentAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RecordSendFailure logs the error and puts the message back in the
// pending pool so the dispatcher picks it up again.
func (r *Repository) RecordSendFailure(ctx context.Context, id uuid.UUID, sendErr string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE GD_scheduled_messages
		SET status = 'pending', attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'enqueued')
	`, id, sendErr)
	return err
}

// MarkFailed permanently fails a message after exhausted retries.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, sendErr string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE GD_scheduled_messages
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE id = $1
	`, id, sendErr)
	return err
}

// CancelPendingForLead synchronously clears every undelivered message for
// a lead. Covers both pending and already-enqueued messages so a racing
// dispatcher finds nothing sendable afterwards.
func (r *Repository) CancelPendingForLead(ctx context.Context, leadID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE GD_scheduled_messages
		SET status = 'canceled', updated_at = now()
		WHERE lead_id = $1 AND status IN ('pending', 'enqueued')
	`, leadID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CancelPendingForRun clears undelivered messages for one run.
func (r *Repository) CancelPendingForRun(ctx context.Context, runID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE GD_scheduled_messages
		SET status = 'canceled', updated_at = now()
		WHERE run_id = $1 AND status IN ('pending', 'enqueued')
	`, runID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListMessagesByRun returns a run's messages in step order.
func (r *Repository) ListMessagesByRun(ctx context.Context, runID uuid.UUID) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM GD_scheduled_messages
		WHERE run_id = $1
		ORDER BY step_number ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// qualified prefixes every column in a comma-separated list, for
// RETURNING clauses that join against a CTE.
func qualified(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
