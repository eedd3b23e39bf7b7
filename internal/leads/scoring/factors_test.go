package scoring

import (
	"strings"
	"testing"
	"time"

	"growthdesk_backend/internal/leads/domain"
)

func leadFixture(mutate func(*domain.Lead)) *domain.Lead {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	lead := &domain.Lead{
		Source:    domain.SourceWebsite,
		Status:    domain.StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mutate != nil {
		mutate(lead)
	}
	return lead
}

func TestQualityFirstTimeWebsiteVisitor(t *testing.T) {
	// One visit, one page view, no form interaction: only the visit band
	// and the website source weight contribute.
	lead := leadFixture(func(l *domain.Lead) {
		l.WebsiteVisits = 1
		l.PageViews = 1
	})

	factors := ExtractFactors(lead)
	if factors.VisitFrequency != 5 {
		t.Fatalf("expected visit frequency 5, got %d", factors.VisitFrequency)
	}
	if factors.PageDepth != 0 {
		t.Fatalf("expected page depth 0, got %d", factors.PageDepth)
	}
	if factors.SourceQuality != 10 {
		t.Fatalf("expected source quality 10, got %d", factors.SourceQuality)
	}
	if got := factors.Quality(); got != 15 {
		t.Fatalf("expected quality 15, got %d", got)
	}

	now := lead.CreatedAt.Add(2 * time.Hour)
	if got := UrgencyScore(lead, now); got != 0 {
		t.Fatalf("expected urgency 0, got %d", got)
	}
}

func TestQualityEngagedReferralLead(t *testing.T) {
	// Heavy browsing plus an abandoned form from a referral: every factor
	// except email engagement lands at its cap.
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	lastVisit := now.Add(-6 * time.Hour)
	lead := leadFixture(func(l *domain.Lead) {
		l.Source = domain.SourceReferral
		l.WebsiteVisits = 5
		l.PageViews = 10
		l.TimeOnSiteSeconds = 320
		l.FormAbandoned = true
		l.CreatedAt = now.Add(-24 * time.Hour)
		l.LastVisitAt = &lastVisit
	})

	factors := ExtractFactors(lead)
	if got := factors.Quality(); got != 85 {
		t.Fatalf("expected quality 85, got %d (factors %+v)", got, factors)
	}

	if got := UrgencyScore(lead, now); got != 85 {
		t.Fatalf("expected urgency 85, got %d", got)
	}

	probability := ConversionProbability(85, 85, lead.Source, lead.AgeDays(now))
	rec := Recommend(85, 85, probability, lead.AgeDays(now))
	if !strings.Contains(rec.Assessment, "contact within minutes") {
		t.Fatalf("expected hot recommendation, got %q", rec.Assessment)
	}
}

func TestQualityFactorBands(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Lead)
		check  func(FactorVector) (int, int) // got, want
	}{
		{"five visits hits the cap", func(l *domain.Lead) { l.WebsiteVisits = 7 },
			func(f FactorVector) (int, int) { return f.VisitFrequency, 20 }},
		{"three visits", func(l *domain.Lead) { l.WebsiteVisits = 3 },
			func(f FactorVector) (int, int) { return f.VisitFrequency, 15 }},
		{"two visits", func(l *domain.Lead) { l.WebsiteVisits = 2 },
			func(f FactorVector) (int, int) { return f.VisitFrequency, 10 }},
		{"ten pages hits the cap", func(l *domain.Lead) { l.PageViews = 12 },
			func(f FactorVector) (int, int) { return f.PageDepth, 15 }},
		{"six pages", func(l *domain.Lead) { l.PageViews = 6 },
			func(f FactorVector) (int, int) { return f.PageDepth, 10 }},
		{"three pages", func(l *domain.Lead) { l.PageViews = 3 },
			func(f FactorVector) (int, int) { return f.PageDepth, 5 }},
		{"five minutes dwell hits the cap", func(l *domain.Lead) { l.TimeOnSiteSeconds = 300 },
			func(f FactorVector) (int, int) { return f.DwellTime, 15 }},
		{"two minutes dwell", func(l *domain.Lead) { l.TimeOnSiteSeconds = 120 },
			func(f FactorVector) (int, int) { return f.DwellTime, 10 }},
		{"one minute dwell", func(l *domain.Lead) { l.TimeOnSiteSeconds = 60 },
			func(f FactorVector) (int, int) { return f.DwellTime, 5 }},
		{"abandoned form", func(l *domain.Lead) { l.FormAbandoned = true },
			func(f FactorVector) (int, int) { return f.FormFriction, 15 }},
		{"two clicks hit the email cap", func(l *domain.Lead) { l.LinksClicked = 2 },
			func(f FactorVector) (int, int) { return f.EmailEngagement, 15 }},
		{"one click", func(l *domain.Lead) { l.LinksClicked = 1; l.EmailsOpened = 5 },
			func(f FactorVector) (int, int) { return f.EmailEngagement, 10 }},
		{"three opens without clicks", func(l *domain.Lead) { l.EmailsOpened = 3 },
			func(f FactorVector) (int, int) { return f.EmailEngagement, 10 }},
		{"one open", func(l *domain.Lead) { l.EmailsOpened = 1 },
			func(f FactorVector) (int, int) { return f.EmailEngagement, 5 }},
		{"walk-in source", func(l *domain.Lead) { l.Source = domain.SourceWalkIn },
			func(f FactorVector) (int, int) { return f.SourceQuality, 15 }},
		{"paid search source", func(l *domain.Lead) { l.Source = domain.SourcePaidSearch },
			func(f FactorVector) (int, int) { return f.SourceQuality, 8 }},
		{"social source", func(l *domain.Lead) { l.Source = domain.SourceSocial },
			func(f FactorVector) (int, int) { return f.SourceQuality, 6 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factors := ExtractFactors(leadFixture(tt.mutate))
			if got, want := tt.check(factors); got != want {
				t.Fatalf("expected %d, got %d", want, got)
			}
		})
	}
}

func TestUrgencyRecencyBranches(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	recent := now.Add(-48 * time.Hour)
	frequent := leadFixture(func(l *domain.Lead) {
		l.WebsiteVisits = 3
		l.LastVisitAt = &recent
		l.CreatedAt = now.Add(-24 * time.Hour)
	})
	if got := UrgencyScore(frequent, now); got != 30 {
		t.Fatalf("expected 30 for three visits within three days, got %d", got)
	}

	weekOld := now.Add(-5 * 24 * time.Hour)
	returning := leadFixture(func(l *domain.Lead) {
		l.WebsiteVisits = 2
		l.LastVisitAt = &weekOld
		l.CreatedAt = now.Add(-6 * 24 * time.Hour)
	})
	if got := UrgencyScore(returning, now); got != 20 {
		t.Fatalf("expected 20 for two visits within seven days, got %d", got)
	}

	// Without a last-visit timestamp no recency bonus applies.
	unknown := leadFixture(func(l *domain.Lead) {
		l.WebsiteVisits = 5
		l.CreatedAt = now.Add(-24 * time.Hour)
	})
	if got := UrgencyScore(unknown, now); got != 0 {
		t.Fatalf("expected 0 without last visit timestamp, got %d", got)
	}
}

func TestUrgencyAgePenaltyClampsAtZero(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	aging := leadFixture(func(l *domain.Lead) {
		l.TimeOnSiteSeconds = 130
		l.CreatedAt = now.Add(-10 * 24 * time.Hour)
	})
	if got := UrgencyScore(aging, now); got != 0 {
		t.Fatalf("expected dwell bonus 10 erased by age penalty -10, got %d", got)
	}

	old := leadFixture(func(l *domain.Lead) {
		l.CreatedAt = now.Add(-20 * 24 * time.Hour)
	})
	if got := UrgencyScore(old, now); got != 0 {
		t.Fatalf("expected urgency clamped at 0, got %d", got)
	}
}

func TestConversionProbabilityBounds(t *testing.T) {
	if got := ConversionProbability(0, 0, domain.SourceOther, 40); got != probabilityFloor {
		t.Fatalf("expected floor %v, got %v", probabilityFloor, got)
	}

	got := ConversionProbability(100, 100, domain.SourceReferral, 0)
	if got <= 0 || got > probabilityCeiling {
		t.Fatalf("expected probability in (0, %v], got %v", probabilityCeiling, got)
	}
}

func TestConversionProbabilityDecreasesWithAge(t *testing.T) {
	ages := []int{1, 8, 15, 31}
	prev := 1.0
	for _, age := range ages {
		p := ConversionProbability(60, 50, domain.SourceReferral, age)
		if p >= prev {
			t.Fatalf("expected probability to decrease with age, got %v at %d days after %v", p, age, prev)
		}
		prev = p
	}
}

func TestConversionProbabilitySourceOrdering(t *testing.T) {
	referral := ConversionProbability(50, 50, domain.SourceReferral, 1)
	website := ConversionProbability(50, 50, domain.SourceWebsite, 1)
	social := ConversionProbability(50, 50, domain.SourceSocial, 1)

	if !(referral > website && website > social) {
		t.Fatalf("expected referral > website > social, got %v, %v, %v", referral, website, social)
	}
}

func TestRecommendCascadeOrder(t *testing.T) {
	tests := []struct {
		name        string
		quality     int
		urgency     int
		probability float64
		ageDays     int
		fragment    string
	}{
		{"hot beats everything", 85, 85, 0.7, 1, "contact within minutes"},
		{"quality alone", 75, 30, 0.4, 1, "High value"},
		{"urgency alone", 30, 65, 0.1, 1, "Time-sensitive"},
		{"quality forty keeps nurturing", 45, 10, 0.1, 1, "continue nurturing"},
		{"probability alone keeps nurturing", 20, 10, 0.35, 1, "continue nurturing"},
		{"aging lead", 10, 5, 0.05, 20, "Aging"},
		{"quiet new lead", 10, 5, 0.05, 2, "monitor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Recommend(tt.quality, tt.urgency, tt.probability, tt.ageDays)
			if !strings.Contains(rec.Assessment, tt.fragment) {
				t.Fatalf("expected assessment containing %q, got %q", tt.fragment, rec.Assessment)
			}
			if rec.NextAction == "" {
				t.Fatal("expected a non-empty next action")
			}
		})
	}
}

func TestIntentSignalsAreDeterministic(t *testing.T) {
	lastPage := "/services/implants"
	lead := leadFixture(func(l *domain.Lead) {
		l.Source = domain.SourceReferral
		l.WebsiteVisits = 5
		l.PageViews = 11
		l.TimeOnSiteSeconds = 350
		l.FormAbandoned = true
		l.LastPageViewed = &lastPage
		l.LinksClicked = 2
	})

	first := IntentSignals(lead)
	second := IntentSignals(lead)
	if len(first) != len(second) {
		t.Fatalf("expected identical signal counts, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected identical signals at %d, got %q and %q", i, first[i], second[i])
		}
	}

	joined := strings.Join(first, "\n")
	for _, want := range []string{
		"Frequent visitor: 5 website visits",
		"high intent with friction",
		"/services/implants",
		"Clicked 2 links",
		"Referred by an existing patient",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected signal containing %q, got:\n%s", want, joined)
		}
	}
}

func TestIntentSignalsQuietLeadStaysQuiet(t *testing.T) {
	lead := leadFixture(func(l *domain.Lead) {
		l.WebsiteVisits = 1
		l.PageViews = 1
	})
	if got := IntentSignals(lead); len(got) != 0 {
		t.Fatalf("expected no signals for a quiet first visit, got %v", got)
	}
}
