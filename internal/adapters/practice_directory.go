package adapters

import (
	"context"
	"time"

	"growthdesk_backend/internal/nurture"
	"growthdesk_backend/internal/nurture/content"
	"growthdesk_backend/internal/practice"
	"growthdesk_backend/platform/config"
)

// PracticeDirectory feeds practice profile data into nurture rendering.
type PracticeDirectory struct {
	practice *practice.Service
}

func NewPracticeDirectory(svc *practice.Service) *PracticeDirectory {
	return &PracticeDirectory{practice: svc}
}

func (a *PracticeDirectory) NurtureTokens(ctx context.Context) (content.PracticeTokens, error) {
	profile, err := a.practice.Get(ctx)
	if err != nil {
		return content.PracticeTokens{}, err
	}
	return content.PracticeTokens{
		PracticeName:  profile.Name,
		PracticePhone: profile.Phone,
		BookingLink:   profile.BookingLink,
	}, nil
}

var _ nurture.PracticeDirectory = (*PracticeDirectory)(nil)

// PracticeClock resolves the nurture send timezone from the practice
// profile instead of static configuration, so an admin timezone change
// takes effect without a restart.
type PracticeClock struct {
	practice *practice.Service
}

func NewPracticeClock(svc *practice.Service) *PracticeClock {
	return &PracticeClock{practice: svc}
}

func (a *PracticeClock) GetNurtureLocation() *time.Location {
	loc, err := a.practice.Location(context.Background())
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

var _ config.NurtureConfig = (*PracticeClock)(nil)
