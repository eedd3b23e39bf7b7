package repository

import (
	"context"
	"time"

	"growthdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	FindByEmail(ctx context.Context, email string) (domain.Lead, error)
	FindByPhoneKey(ctx context.Context, key string) (domain.Lead, error)
	List(ctx context.Context, params ListParams) ([]domain.Lead, int, error)
}

// LeadWriter provides write operations for lead mutation.
type LeadWriter interface {
	Create(ctx context.Context, params CreateLeadParams) (domain.Lead, error)
	MergeCapture(ctx context.Context, id uuid.UUID, params MergeCaptureParams) (domain.Lead, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, params UpdateLeadParams) (domain.Lead, error)
	UpdateScores(ctx context.Context, id uuid.UUID, update ScoreUpdate) (domain.Lead, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (domain.Lead, error)
	MarkLost(ctx context.Context, id uuid.UUID, reason string, optedOut bool) (domain.Lead, error)
	Assign(ctx context.Context, id uuid.UUID, staffID uuid.UUID) (domain.Lead, error)
	IncrementEngagement(ctx context.Context, id uuid.UUID, opens, clicks, replies int) (domain.Lead, error)
	BumpUrgency(ctx context.Context, id uuid.UUID, delta int) (domain.Lead, error)
	SetRequiresHumanFollowUp(ctx context.Context, id uuid.UUID, required bool) error
}

// RankReader computes the best-effort priority rank of a lead against the
// active population. Non-linearizable under concurrent writes.
type RankReader interface {
	CountRankedAbove(ctx context.Context, quality int, probability float64) (int, error)
}

// StaleScanner finds active leads whose scores left the freshness window.
type StaleScanner interface {
	ListStaleActiveIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// ActivityLogger records the append-only audit trail on leads.
type ActivityLogger interface {
	AddActivity(ctx context.Context, params AddActivityParams) error
	ListActivity(ctx context.Context, leadID uuid.UUID, limit, offset int) ([]Activity, error)
}

// ConversionStore persists conversion records linking leads to realized
// patients.
type ConversionStore interface {
	CreateConversion(ctx context.Context, params CreateConversionParams) (Conversion, error)
	ListConversions(ctx context.Context, leadID uuid.UUID) ([]Conversion, error)
}

// LeadsRepository is the composite interface the services consume.
type LeadsRepository interface {
	LeadReader
	LeadWriter
	RankReader
	StaleScanner
	ActivityLogger
	ConversionStore
}
