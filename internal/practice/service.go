// Package practice manages the practice profile: the name, contact
// details, booking link and timezone that personalize every outbound
// message, plus the printable booking QR code.
package practice

import (
	"context"
	"fmt"
	"time"

	"growthdesk_backend/internal/practice/repository"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/sanitize"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 512
	maxQRSize     = 2048
)

// Store is the persistence surface the service needs.
type Store interface {
	Get(ctx context.Context) (repository.Profile, error)
	Update(ctx context.Context, params repository.UpdateParams) (repository.Profile, error)
}

type Service struct {
	store Store
	log   *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

func (s *Service) Get(ctx context.Context) (repository.Profile, error) {
	return s.store.Get(ctx)
}

type UpdateInput struct {
	Name        *string
	Phone       *string
	Email       *string
	BookingLink *string
	Timezone    *string
	Address     *string
}

func (s *Service) Update(ctx context.Context, input UpdateInput) (repository.Profile, error) {
	if input.Timezone != nil {
		if _, err := time.LoadLocation(*input.Timezone); err != nil {
			return repository.Profile{}, apperr.Validation(fmt.Sprintf("%q is not a valid IANA timezone", *input.Timezone))
		}
	}

	profile, err := s.store.Update(ctx, repository.UpdateParams{
		Name:        sanitize.TextPtr(input.Name),
		Phone:       sanitize.TextPtr(input.Phone),
		Email:       sanitize.TextPtr(input.Email),
		BookingLink: sanitize.TextPtr(input.BookingLink),
		Timezone:    input.Timezone,
		Address:     sanitize.TextPtr(input.Address),
	})
	if err != nil {
		return repository.Profile{}, fmt.Errorf("update practice profile: %w", err)
	}

	s.log.Info("practice profile updated")
	return profile, nil
}

// Location resolves the practice timezone, falling back to UTC when the
// stored zone is unparseable.
func (s *Service) Location(ctx context.Context) (*time.Location, error) {
	profile, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		s.log.Warn("stored practice timezone invalid, using UTC", "timezone", profile.Timezone)
		return time.UTC, nil
	}
	return loc, nil
}

// BookingQR renders the booking link as a PNG QR code for front-desk
// print material.
func (s *Service) BookingQR(ctx context.Context, size int) ([]byte, error) {
	profile, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if profile.BookingLink == "" {
		return nil, apperr.InvalidState("practice has no booking link configured")
	}

	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	png, err := qrcode.Encode(profile.BookingLink, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode booking qr: %w", err)
	}
	return png, nil
}
