package nurture

import (
	"testing"

	"growthdesk_backend/internal/nurture/catalog"
)

func TestSelectSequence(t *testing.T) {
	tests := []struct {
		name        string
		quality     int
		urgency     int
		probability float64
		ageDays     int
		engagement  int
		want        string
	}{
		{
			name:    "hot and urgent lead gets decision",
			quality: 75, urgency: 60, probability: 0.5, ageDays: 2, engagement: 40,
			want: catalog.KeyDecision,
		},
		{
			name:    "high quality without urgency falls to consideration",
			quality: 75, urgency: 30, probability: 0.2, ageDays: 2, engagement: 40,
			want: catalog.KeyConsideration,
		},
		{
			name:    "moderate quality gets consideration",
			quality: 45, urgency: 10, probability: 0.1, ageDays: 5, engagement: 15,
			want: catalog.KeyConsideration,
		},
		{
			name:    "low quality but promising probability gets consideration",
			quality: 20, urgency: 10, probability: 0.35, ageDays: 5, engagement: 15,
			want: catalog.KeyConsideration,
		},
		{
			name:    "cold fresh lead gets awareness",
			quality: 20, urgency: 10, probability: 0.1, ageDays: 5, engagement: 0,
			want: catalog.KeyAwareness,
		},
		{
			name:    "stale disengaged lead gets re-engagement",
			quality: 20, urgency: 10, probability: 0.1, ageDays: 25, engagement: 10,
			want: catalog.KeyReEngagement,
		},
		{
			name:    "stale but engaged lead is not clawed back",
			quality: 45, urgency: 10, probability: 0.1, ageDays: 25, engagement: 55,
			want: catalog.KeyConsideration,
		},
		{
			name:    "re-engagement outranks decision for stale leads",
			quality: 80, urgency: 70, probability: 0.6, ageDays: 30, engagement: 5,
			want: catalog.KeyReEngagement,
		},
		{
			name:    "exactly 21 days old is not yet stale",
			quality: 10, urgency: 5, probability: 0.05, ageDays: 21, engagement: 0,
			want: catalog.KeyAwareness,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectSequence(tt.quality, tt.urgency, tt.probability, tt.ageDays, tt.engagement)
			if got != tt.want {
				t.Fatalf("SelectSequence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectSequenceIsDeterministic(t *testing.T) {
	first := SelectSequence(55, 40, 0.25, 10, 30)
	for i := 0; i < 50; i++ {
		if got := SelectSequence(55, 40, 0.25, 10, 30); got != first {
			t.Fatalf("selection changed between identical calls: %q vs %q", first, got)
		}
	}
}
