// Package repository persists the leads bounded context in Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"growthdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// leadColumns is the full projection including the live nurture run
// pointers. Requires the liveRunJoin.
const leadColumns = `
	l.id, l.first_name, l.last_name, l.email, l.phone, l.phone_match_key, l.source, l.status,
	l.website_visits, l.page_views, l.time_on_site_seconds, l.form_abandoned, l.last_page_viewed, l.last_visit_at,
	l.emails_opened, l.links_clicked, l.replies_received,
	l.quality_score, l.urgency_score, l.conversion_probability, l.score_factors, l.score_version,
	l.recommendation, l.suggested_action, l.requires_human_follow_up, l.opted_out, l.lost_reason,
	l.assigned_staff_id,
	r.sequence_key, COALESCE(r.current_step, 0),
	l.created_at, l.updated_at, l.last_scored_at, l.nurture_started_at, l.converted_at`

const liveRunJoin = `
	LEFT JOIN GD_nurture_runs r ON r.lead_id = l.id AND r.status IN ('active', 'paused')`

// bareColumns is the projection used in RETURNING clauses, where no join
// is available. Nurture pointers stay zero-valued.
const bareColumns = `
	id, first_name, last_name, email, phone, phone_match_key, source, status,
	website_visits, page_views, time_on_site_seconds, form_abandoned, last_page_viewed, last_visit_at,
	emails_opened, links_clicked, replies_received,
	quality_score, urgency_score, conversion_probability, score_factors, score_version,
	recommendation, suggested_action, requires_human_follow_up, opted_out, lost_reason,
	assigned_staff_id,
	created_at, updated_at, last_scored_at, nurture_started_at, converted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (domain.Lead, error) {
	var lead domain.Lead
	var source, status string
	err := row.Scan(
		&lead.ID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone, &lead.PhoneMatchKey, &source, &status,
		&lead.WebsiteVisits, &lead.PageViews, &lead.TimeOnSiteSeconds, &lead.FormAbandoned, &lead.LastPageViewed, &lead.LastVisitAt,
		&lead.EmailsOpened, &lead.LinksClicked, &lead.RepliesReceived,
		&lead.QualityScore, &lead.UrgencyScore, &lead.ConversionProbability, &lead.ScoreFactors, &lead.ScoreVersion,
		&lead.Recommendation, &lead.SuggestedAction, &lead.RequiresHumanFollowUp, &lead.OptedOut, &lead.LostReason,
		&lead.AssignedStaffID,
		&lead.ActiveSequenceKey, &lead.CurrentStepNumber,
		&lead.CreatedAt, &lead.UpdatedAt, &lead.LastScoredAt, &lead.NurtureStartedAt, &lead.ConvertedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Source = domain.Source(source)
	lead.Status = domain.Status(status)
	return lead, nil
}

func scanBareLead(row rowScanner) (domain.Lead, error) {
	var lead domain.Lead
	var source, status string
	err := row.Scan(
		&lead.ID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone, &lead.PhoneMatchKey, &source, &status,
		&lead.WebsiteVisits, &lead.PageViews, &lead.TimeOnSiteSeconds, &lead.FormAbandoned, &lead.LastPageViewed, &lead.LastVisitAt,
		&lead.EmailsOpened, &lead.LinksClicked, &lead.RepliesReceived,
		&lead.QualityScore, &lead.UrgencyScore, &lead.ConversionProbability, &lead.ScoreFactors, &lead.ScoreVersion,
		&lead.Recommendation, &lead.SuggestedAction, &lead.RequiresHumanFollowUp, &lead.OptedOut, &lead.LostReason,
		&lead.AssignedStaffID,
		&lead.CreatedAt, &lead.UpdatedAt, &lead.LastScoredAt, &lead.NurtureStartedAt, &lead.ConvertedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Source = domain.Source(source)
	lead.Status = domain.Status(status)
	return lead, nil
}

type CreateLeadParams struct {
	FirstName         string
	LastName          string
	Email             *string
	Phone             *string
	PhoneMatchKey     *string
	Source            domain.Source
	WebsiteVisits     int
	PageViews         int
	TimeOnSiteSeconds int
	FormAbandoned     bool
	LastPageViewed    *string
	LastVisitAt       *time.Time
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO GD_leads (
			first_name, last_name, email, phone, phone_match_key, source,
			website_visits, page_views, time_on_site_seconds, form_abandoned, last_page_viewed, last_visit_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+bareColumns,
		params.FirstName, params.LastName, params.Email, params.Phone, params.PhoneMatchKey, string(params.Source),
		params.WebsiteVisits, params.PageViews, params.TimeOnSiteSeconds, params.FormAbandoned, params.LastPageViewed, params.LastVisitAt,
	)
	return scanBareLead(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM GD_leads l`+liveRunJoin+`
		WHERE l.id = $1
	`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// FindByEmail matches case-insensitively and prefers the newest
// unconverted lead, so merges never resurrect a terminal record.
func (r *Repository) FindByEmail(ctx context.Context, email string) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM GD_leads l`+liveRunJoin+`
		WHERE lower(l.email) = lower($1) AND l.status NOT IN ('CONVERTED', 'LOST')
		ORDER BY l.created_at DESC
		LIMIT 1
	`, email)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) FindByPhoneKey(ctx context.Context, key string) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM GD_leads l`+liveRunJoin+`
		WHERE l.phone_match_key = $1 AND l.status NOT IN ('CONVERTED', 'LOST')
		ORDER BY l.created_at DESC
		LIMIT 1
	`, key)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// ListParams filters and pages the lead list.
type ListParams struct {
	Statuses        []domain.Status
	AssignedStaffID *uuid.UUID
	Search          string
	Sort            string // "newest" (default) or "priority"
	Page            int
	PageSize        int
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]domain.Lead, int, error) {
	where := []string{"1=1"}
	args := []any{}

	if len(params.Statuses) > 0 {
		statuses := make([]string, 0, len(params.Statuses))
		for _, s := range params.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("l.status = ANY($%d)", len(args)))
	}
	if params.AssignedStaffID != nil {
		args = append(args, *params.AssignedStaffID)
		where = append(where, fmt.Sprintf("l.assigned_staff_id = $%d", len(args)))
	}
	if search := strings.TrimSpace(params.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(l.first_name ILIKE $%d OR l.last_name ILIKE $%d OR l.email ILIKE $%d OR l.phone ILIKE $%d)", n, n, n, n))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM GD_leads l WHERE %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderBy := "l.created_at DESC"
	if params.Sort == "priority" {
		orderBy = "l.quality_score DESC, l.conversion_probability DESC, l.created_at DESC"
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}
	args = append(args, pageSize, (page-1)*pageSize)

	query := fmt.Sprintf(`
		SELECT %s
		FROM GD_leads l%s
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, leadColumns, liveRunJoin, whereClause, orderBy, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lead)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	return items, total, nil
}

// MergeCaptureParams folds a duplicate capture into an existing lead.
// Counters are summed; identity fields only fill gaps.
type MergeCaptureParams struct {
	FirstName         string
	LastName          string
	Email             *string
	Phone             *string
	PhoneMatchKey     *string
	WebsiteVisits     int
	PageViews         int
	TimeOnSiteSeconds int
	FormAbandoned     bool
	LastPageViewed    *string
	LastVisitAt       *time.Time
}

func (r *Repository) MergeCapture(ctx context.Context, id uuid.UUID, params MergeCaptureParams) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_leads SET
			first_name = CASE WHEN first_name = '' THEN $2 ELSE first_name END,
			last_name = CASE WHEN last_name = '' THEN $3 ELSE last_name END,
			email = COALESCE(email, $4),
			phone = COALESCE(phone, $5),
			phone_match_key = COALESCE(phone_match_key, $6),
			website_visits = website_visits + $7,
			page_views = page_views + $8,
			time_on_site_seconds = time_on_site_seconds + $9,
			form_abandoned = form_abandoned OR $10,
			last_page_viewed = COALESCE($11, last_page_viewed),
			last_visit_at = GREATEST(COALESCE($12, last_visit_at), COALESCE(last_visit_at, $12)),
			updated_at = now()
		WHERE id = $1
		RETURNING `+bareColumns,
		id, params.FirstName, params.LastName, params.Email, params.Phone, params.PhoneMatchKey,
		params.WebsiteVisits, params.PageViews, params.TimeOnSiteSeconds, params.FormAbandoned,
		params.LastPageViewed, params.LastVisitAt,
	)
	lead, err := scanBareLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// UpdateLeadParams edits contact details through the management API.
type UpdateLeadParams struct {
	FirstName     *string
	LastName      *string
	Email         *string
	Phone         *string
	PhoneMatchKey *string
}

func (r *Repository) UpdateDetails(ctx context.Context, id uuid.UUID, params UpdateLeadParams) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_leads SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			email = COALESCE($4, email),
			phone = COALESCE($5, phone),
			phone_match_key = COALESCE($6, phone_match_key),
			updated_at = now()
		WHERE id = $1
		RETURNING `+bareColumns,
		id, params.FirstName, params.LastName, params.Email, params.Phone, params.PhoneMatchKey,
	)
	lead, err := scanBareLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// ScoreUpdate is the output of a scoring pass.
type ScoreUpdate struct {
	Quality         int
	Urgency         int
	Probability     float64
	FactorsJSON     []byte
	Version         string
	Recommendation  string
	SuggestedAction string
	ScoredAt        time.Time
}

func (r *Repository) UpdateScores(ctx context.Context, id uuid.UUID, update ScoreUpdate) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_leads SET
			quality_score = $2,
			urgency_score = $3,
			conversion_probability = $4,
			score_factors = $5,
			score_version = $6,
			recommendation = $7,
			suggested_action = $8,
			last_scored_at = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING `+bareColumns,
		id, update.Quality, update.Urgency, update.Probability, update.FactorsJSON,
		update.Version, update.Recommendation, update.SuggestedAction, update.ScoredAt,
	)
	lead, err := scanBareLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_leads SET
			status = $2,
			nurture_started_at = CASE WHEN $2 = 'NURTURING' THEN now() ELSE nurture_started_at END,
			converted_at = CASE WHEN $2 = 'CONVERTED' THEN now() ELSE converted_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+bareColumns,
		id, string(status),
	)
	lead, err := scanBareLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) MarkLost(ctx context.Context, id uuid.UUID, reason string, optedOut bool) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_leads SET
			status = 'LOST',
			lost_reason = $2,
			opted_out = opted_out OR $3,
			updated_at = now()
		WHERE id = $1
		RETURNING `+bareColumns,
		id, reason, optedOut,
	)
	lead, err := scanBareLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) Assign(ctx context.Context, id uuid.UUID, staffID uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_leads SET assigned_staff_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+bareColumns,
		id, staffID,
	)
	lead, err := scanBareLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) IncrementEngagement(ctx context.Context, id uuid.UUID, opens, clicks, replies int) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_leads SET
			emails_opened = emails_opened + $2,
			links_clicked = links_clicked + $3,
			replies_received = replies_received + $4,
			updated_at = now()
		WHERE id = $1
		RETURNING `+bareColumns,
		id, opens, clicks, replies,
	)
	lead, err := scanBareLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// BumpUrgency applies an escalation delta directly, clamped to 0-100.
// Escalations must land regardless of score freshness.
func (r *Repository) BumpUrgency(ctx context.Context, id uuid.UUID, delta int) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE GD_leads SET
			urgency_score = LEAST(100, GREATEST(0, urgency_score + $2)),
			updated_at = now()
		WHERE id = $1
		RETURNING `+bareColumns,
		id, delta,
	)
	lead, err := scanBareLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) SetRequiresHumanFollowUp(ctx context.Context, id uuid.UUID, required bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE GD_leads SET requires_human_follow_up = $2, updated_at = now()
		WHERE id = $1
	`, id, required)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountRankedAbove counts active leads strictly ahead in the
// (quality desc, probability desc) order. Rank is this count plus one.
func (r *Repository) CountRankedAbove(ctx context.Context, quality int, probability float64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM GD_leads
		WHERE status NOT IN ('CONVERTED', 'LOST')
		  AND (quality_score > $1 OR (quality_score = $1 AND conversion_probability > $2))
	`, quality, probability).Scan(&count)
	return count, err
}

// ListStaleActiveIDs returns active leads whose last scoring pass is
// missing or older than the cutoff, oldest first.
func (r *Repository) ListStaleActiveIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM GD_leads
		WHERE status NOT IN ('CONVERTED', 'LOST')
		  AND (last_scored_at IS NULL OR last_scored_at < $1)
		ORDER BY last_scored_at ASC NULLS FIRST
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
