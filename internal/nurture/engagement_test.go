package nurture

import "testing"

func TestEngagementScore(t *testing.T) {
	tests := []struct {
		name        string
		opens       int
		clicks      int
		replies     int
		currentStep int
		want        int
	}{
		{"no activity", 0, 0, 0, 0, 0},
		{"single open", 1, 0, 0, 0, 10},
		{"opens cap at three", 5, 0, 0, 0, 30},
		{"clicks cap", 0, 4, 0, 0, 40},
		{"replies cap", 0, 0, 3, 0, 30},
		{"everything maxed stays bounded", 10, 10, 10, 0, 100},
		{"fast responder bonus on step one", 1, 0, 1, 1, 40},
		{"fast responder bonus on step two", 0, 2, 0, 2, 40},
		{"no bonus below threshold", 1, 0, 0, 1, 10},
		{"no bonus past step two", 1, 0, 1, 3, 30},
		{"no bonus without an active run", 1, 0, 1, 0, 30},
		{"bonus never exceeds the cap", 3, 3, 3, 2, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EngagementScore(tt.opens, tt.clicks, tt.replies, tt.currentStep)
			if got != tt.want {
				t.Fatalf("EngagementScore(%d, %d, %d, %d) = %d, want %d",
					tt.opens, tt.clicks, tt.replies, tt.currentStep, got, tt.want)
			}
		})
	}
}
