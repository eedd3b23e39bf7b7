package management

import (
	"encoding/json"

	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/leads/repository"
	"growthdesk_backend/internal/leads/scoring"
	"growthdesk_backend/internal/leads/transport"
)

func factorBreakdownFromLead(lead domain.Lead) *transport.FactorBreakdown {
	if len(lead.ScoreFactors) == 0 {
		return nil
	}

	var vec scoring.FactorVector
	if err := json.Unmarshal(lead.ScoreFactors, &vec); err != nil {
		return nil
	}

	return &transport.FactorBreakdown{
		VisitFrequency:  vec.VisitFrequency,
		PageDepth:       vec.PageDepth,
		DwellTime:       vec.DwellTime,
		FormFriction:    vec.FormFriction,
		EmailEngagement: vec.EmailEngagement,
		SourceQuality:   vec.SourceQuality,
	}
}

// ToLeadResponse converts a domain Lead to a transport LeadResponse.
func ToLeadResponse(lead domain.Lead) transport.LeadResponse {
	return transport.LeadResponse{
		ID:                    lead.ID,
		FirstName:             lead.FirstName,
		LastName:              lead.LastName,
		Email:                 lead.Email,
		Phone:                 lead.Phone,
		Source:                transport.LeadSource(lead.Source),
		Status:                transport.LeadStatus(lead.Status),
		WebsiteVisits:         lead.WebsiteVisits,
		PageViews:             lead.PageViews,
		TimeOnSiteSeconds:     lead.TimeOnSiteSeconds,
		FormAbandoned:         lead.FormAbandoned,
		LastPageViewed:        lead.LastPageViewed,
		LastVisitAt:           lead.LastVisitAt,
		EmailsOpened:          lead.EmailsOpened,
		LinksClicked:          lead.LinksClicked,
		RepliesReceived:       lead.RepliesReceived,
		QualityScore:          lead.QualityScore,
		UrgencyScore:          lead.UrgencyScore,
		ConversionProbability: lead.ConversionProbability,
		FactorBreakdown:       factorBreakdownFromLead(lead),
		ScoreVersion:          lead.ScoreVersion,
		Recommendation:        lead.Recommendation,
		SuggestedAction:       lead.SuggestedAction,
		RequiresHumanFollowUp: lead.RequiresHumanFollowUp,
		OptedOut:              lead.OptedOut,
		LostReason:            lead.LostReason,
		AssignedStaffID:       lead.AssignedStaffID,
		ActiveSequenceKey:     lead.ActiveSequenceKey,
		CurrentStepNumber:     lead.CurrentStepNumber,
		CreatedAt:             lead.CreatedAt,
		UpdatedAt:             lead.UpdatedAt,
		LastScoredAt:          lead.LastScoredAt,
		NurtureStartedAt:      lead.NurtureStartedAt,
		ConvertedAt:           lead.ConvertedAt,
	}
}

// ToLeadDetailResponse enriches the base response with the live intent
// signals and the lead's rank in the active population.
func ToLeadDetailResponse(lead domain.Lead, rank int) transport.LeadResponse {
	resp := ToLeadResponse(lead)
	resp.IntentSignals = scoring.IntentSignals(&lead)
	if rank > 0 {
		resp.PriorityRank = &rank
	}
	return resp
}

// ToScoreResponse converts a scoring pass result to a transport response.
func ToScoreResponse(result *scoring.Result) transport.ScoreResponse {
	return transport.ScoreResponse{
		LeadID:       result.LeadID,
		QualityScore: result.Quality,
		UrgencyScore: result.Urgency,
		Probability:  result.Probability,
		FactorBreakdown: transport.FactorBreakdown{
			VisitFrequency:  result.Factors.VisitFrequency,
			PageDepth:       result.Factors.PageDepth,
			DwellTime:       result.Factors.DwellTime,
			FormFriction:    result.Factors.FormFriction,
			EmailEngagement: result.Factors.EmailEngagement,
			SourceQuality:   result.Factors.SourceQuality,
		},
		Recommendation: transport.RecommendationResponse{
			Assessment: result.Recommendation.Assessment,
			NextAction: result.Recommendation.NextAction,
		},
		IntentSignals: result.Signals,
		Status:        transport.LeadStatus(result.Lead.Status),
		ScoreVersion:  result.Version,
		ScoredAt:      result.ScoredAt,
		Cached:        result.Cached,
	}
}

// ToConversionResponse converts a repository Conversion to a transport response.
func ToConversionResponse(conv repository.Conversion) transport.ConversionResponse {
	return transport.ConversionResponse{
		ID:          conv.ID,
		LeadID:      conv.LeadID,
		StaffID:     conv.StaffID,
		Amount:      conv.Amount,
		Currency:    conv.Currency,
		ExternalRef: conv.ExternalRef,
		Notes:       conv.Notes,
		CreatedAt:   conv.CreatedAt,
	}
}

// ToActivityResponse converts a repository Activity to a transport response.
func ToActivityResponse(entry repository.Activity) transport.ActivityResponse {
	return transport.ActivityResponse{
		ID:        entry.ID,
		ActorType: entry.ActorType,
		ActorID:   entry.ActorID,
		Action:    entry.Action,
		Summary:   entry.Summary,
		OldValue:  entry.OldValue,
		NewValue:  entry.NewValue,
		Meta:      entry.Meta,
		CreatedAt: entry.CreatedAt,
	}
}
