package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"growthdesk_backend/internal/events"
	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/leads/repository"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Version tags every stored score with the model that produced it.
// Bump when changing scoring logic significantly.
const Version = "2026-v1"

// bulkScoringParallelism bounds concurrent recalculations in a bulk pass.
// Distinct leads are independent, so this is purely a pool-pressure limit.
const bulkScoringParallelism = 8

// LeadStore is the slice of the repository the scorer needs.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	UpdateScores(ctx context.Context, id uuid.UUID, update repository.ScoreUpdate) (domain.Lead, error)
	AddActivity(ctx context.Context, params repository.AddActivityParams) error
}

// Result is the full output of a scoring pass.
type Result struct {
	LeadID         uuid.UUID      `json:"leadId"`
	Quality        int            `json:"qualityScore"`
	Urgency        int            `json:"urgencyScore"`
	Probability    float64        `json:"conversionProbability"`
	Factors        FactorVector   `json:"factors"`
	Recommendation Recommendation `json:"recommendation"`
	Signals        []string       `json:"intentSignals"`
	Version        string         `json:"scoreVersion"`
	ScoredAt       time.Time      `json:"scoredAt"`
	Cached         bool           `json:"cached"`
	Lead           domain.Lead    `json:"-"`
}

// Service computes and persists lead scores.
type Service struct {
	repo LeadStore
	bus  events.Bus
	log  *logger.Logger
}

func New(repo LeadStore, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// Recalculate runs a scoring pass for one lead. Within the freshness
// window the stored scores are returned untouched unless force is set;
// scores are pure functions of the counters, so recomputing inside the
// window would only burn writes.
func (s *Service) Recalculate(ctx context.Context, leadID uuid.UUID, force bool) (*Result, error) {
	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, err
	}

	if lead.IsTerminal() {
		return nil, apperr.InvalidState(fmt.Sprintf("lead is %s; terminal leads are not rescored", lead.Status))
	}

	now := time.Now().UTC()
	if !force && lead.HasFreshScore(now) {
		return s.cachedResult(&lead)
	}

	result, err := s.computeAndStore(ctx, &lead, now)
	if err != nil {
		return nil, err
	}

	s.log.ScoreEvent(leadID.String(), result.Quality, result.Urgency, result.Probability, false)
	s.bus.Publish(ctx, events.LeadScored{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      leadID,
		Quality:     result.Quality,
		Urgency:     result.Urgency,
		Probability: result.Probability,
	})

	return result, nil
}

func (s *Service) cachedResult(lead *domain.Lead) (*Result, error) {
	var factors FactorVector
	if len(lead.ScoreFactors) > 0 {
		if err := json.Unmarshal(lead.ScoreFactors, &factors); err != nil {
			return nil, fmt.Errorf("stored score factors corrupt for lead %s: %w", lead.ID, err)
		}
	}

	scoredAt := time.Time{}
	if lead.LastScoredAt != nil {
		scoredAt = *lead.LastScoredAt
	}

	s.log.ScoreEvent(lead.ID.String(), lead.QualityScore, lead.UrgencyScore, lead.ConversionProbability, true)

	return &Result{
		LeadID:      lead.ID,
		Quality:     lead.QualityScore,
		Urgency:     lead.UrgencyScore,
		Probability: lead.ConversionProbability,
		Factors:     factors,
		Recommendation: Recommendation{
			Assessment: lead.Recommendation,
			NextAction: lead.SuggestedAction,
		},
		Signals:  IntentSignals(lead),
		Version:  lead.ScoreVersion,
		ScoredAt: scoredAt,
		Cached:   true,
		Lead:     *lead,
	}, nil
}

func (s *Service) computeAndStore(ctx context.Context, lead *domain.Lead, now time.Time) (*Result, error) {
	factors := ExtractFactors(lead)
	quality := factors.Quality()
	urgency := UrgencyScore(lead, now)
	ageDays := lead.AgeDays(now)
	probability := roundProbability(ConversionProbability(quality, urgency, lead.Source, ageDays))
	rec := Recommend(quality, urgency, probability, ageDays)

	factorsJSON, err := json.Marshal(factors)
	if err != nil {
		return nil, fmt.Errorf("marshal score factors: %w", err)
	}

	updated, err := s.repo.UpdateScores(ctx, lead.ID, repository.ScoreUpdate{
		Quality:         quality,
		Urgency:         urgency,
		Probability:     probability,
		FactorsJSON:     factorsJSON,
		Version:         Version,
		Recommendation:  rec.Assessment,
		SuggestedAction: rec.NextAction,
		ScoredAt:        now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, err
	}

	if err := s.repo.AddActivity(ctx, repository.AddActivityParams{
		LeadID:  lead.ID,
		Actor:   domain.AgentActor(),
		Action:  repository.ActionScored,
		Summary: fmt.Sprintf("Scored quality=%d urgency=%d probability=%.2f", quality, urgency, probability),
		Meta: map[string]any{
			"factors": factors,
			"version": Version,
		},
	}); err != nil {
		s.log.Error("score activity write failed", "leadId", lead.ID, "error", err)
	}

	return &Result{
		LeadID:         lead.ID,
		Quality:        quality,
		Urgency:        urgency,
		Probability:    probability,
		Factors:        factors,
		Recommendation: rec,
		Signals:        IntentSignals(&updated),
		Version:        Version,
		ScoredAt:       now,
		Cached:         false,
		Lead:           updated,
	}, nil
}

// PriorityRanker exposes the population rank count to the scorer consumers.
type PriorityRanker interface {
	CountRankedAbove(ctx context.Context, quality int, probability float64) (int, error)
}

// BulkOutcome reports a bulk scoring pass. Per-item failures are isolated:
// one lead's failure never aborts the batch.
type BulkOutcome struct {
	Scored   int               `json:"scored"`
	Cached   int               `json:"cached"`
	Failed   int               `json:"failed"`
	Failures map[string]string `json:"failures,omitempty"`
}

// RecalculateBulk scores many leads concurrently. Operations on distinct
// leads are independent, so they run in parallel up to a fixed width.
func (s *Service) RecalculateBulk(ctx context.Context, leadIDs []uuid.UUID, force bool) BulkOutcome {
	outcome := BulkOutcome{Failures: make(map[string]string)}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(bulkScoringParallelism)

	for _, id := range leadIDs {
		leadID := id
		group.Go(func() error {
			result, err := s.Recalculate(groupCtx, leadID, force)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				outcome.Failed++
				outcome.Failures[leadID.String()] = err.Error()
			case result.Cached:
				outcome.Cached++
			default:
				outcome.Scored++
			}
			// Never propagate: per-item isolation.
			return nil
		})
	}

	// Only returns ctx errors since workers swallow their own.
	if err := group.Wait(); err != nil {
		s.log.Error("bulk scoring interrupted", "error", err)
	}

	if len(outcome.Failures) == 0 {
		outcome.Failures = nil
	}
	return outcome
}
