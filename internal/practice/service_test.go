package practice

import (
	"bytes"
	"context"
	"testing"
	"time"

	"growthdesk_backend/internal/practice/repository"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"
)

type fakeStore struct {
	profile repository.Profile
}

func (s *fakeStore) Get(context.Context) (repository.Profile, error) {
	return s.profile, nil
}

func (s *fakeStore) Update(_ context.Context, params repository.UpdateParams) (repository.Profile, error) {
	if params.Name != nil {
		s.profile.Name = *params.Name
	}
	if params.Phone != nil {
		s.profile.Phone = *params.Phone
	}
	if params.Email != nil {
		s.profile.Email = *params.Email
	}
	if params.BookingLink != nil {
		s.profile.BookingLink = *params.BookingLink
	}
	if params.Timezone != nil {
		s.profile.Timezone = *params.Timezone
	}
	if params.Address != nil {
		s.profile.Address = *params.Address
	}
	return s.profile, nil
}

func newTestService(profile repository.Profile) (*Service, *fakeStore) {
	store := &fakeStore{profile: profile}
	return NewService(store, logger.New("development")), store
}

func strPtr(s string) *string { return &s }

func TestUpdateRejectsInvalidTimezone(t *testing.T) {
	svc, _ := newTestService(repository.Profile{Timezone: "America/New_York"})

	_, err := svc.Update(context.Background(), UpdateInput{Timezone: strPtr("Mars/Olympus_Mons")})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	svc, _ := newTestService(repository.Profile{Timezone: "not-a-zone"})

	loc, err := svc.Location(context.Background())
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}
}

func TestBookingQRProducesPNG(t *testing.T) {
	svc, _ := newTestService(repository.Profile{BookingLink: "https://example.com/book"})

	png, err := svc.BookingQR(context.Background(), 256)
	if err != nil {
		t.Fatalf("BookingQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
}

func TestBookingQRNeedsALink(t *testing.T) {
	svc, _ := newTestService(repository.Profile{})

	_, err := svc.BookingQR(context.Background(), 256)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
}
