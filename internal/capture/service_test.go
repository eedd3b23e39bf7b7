package capture

import (
	"context"
	"testing"
	"time"

	"growthdesk_backend/internal/capture/repository"
	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/leads/intake"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeKeyStore struct {
	keys map[uuid.UUID]repository.Key
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{keys: make(map[uuid.UUID]repository.Key)}
}

func (s *fakeKeyStore) Create(_ context.Context, name, keyHash, keyPrefix string, allowedDomains []string) (repository.Key, error) {
	key := repository.Key{
		ID:             uuid.New(),
		Name:           name,
		KeyHash:        keyHash,
		KeyPrefix:      keyPrefix,
		AllowedDomains: allowedDomains,
		IsActive:       true,
	}
	s.keys[key.ID] = key
	return key, nil
}

func (s *fakeKeyStore) List(context.Context) ([]repository.Key, error) {
	var out []repository.Key
	for _, k := range s.keys {
		out = append(out, k)
	}
	return out, nil
}

func (s *fakeKeyStore) Revoke(_ context.Context, id uuid.UUID) error {
	key, ok := s.keys[id]
	if !ok || !key.IsActive {
		return repository.ErrKeyNotFound
	}
	key.IsActive = false
	s.keys[id] = key
	return nil
}

type countingIntake struct {
	calls int
}

func (c *countingIntake) Capture(_ context.Context, _ intake.CaptureInput) (*intake.Outcome, error) {
	c.calls++
	return &intake.Outcome{Lead: domain.Lead{ID: uuid.New()}, Created: true}, nil
}

func TestSubmitSuppressesDuplicatesInsideWindow(t *testing.T) {
	sink := &countingIntake{}
	svc := NewService(newFakeKeyStore(), sink, logger.New("development"))

	base := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	now := base
	svc.now = func() time.Time { return now }

	input := intake.CaptureInput{Email: "dana@example.com", Source: "website", SourceDomain: "example.com"}

	if _, dup, err := svc.Submit(context.Background(), input); err != nil || dup {
		t.Fatalf("first submit: dup=%v err=%v", dup, err)
	}

	now = base.Add(30 * time.Second)
	if _, dup, err := svc.Submit(context.Background(), input); err != nil || !dup {
		t.Fatalf("second submit inside window: dup=%v err=%v", dup, err)
	}
	if sink.calls != 1 {
		t.Fatalf("intake called %d times, want 1", sink.calls)
	}

	// Outside the window the same payload is a real capture again.
	now = base.Add(2 * time.Minute)
	if _, dup, err := svc.Submit(context.Background(), input); err != nil || dup {
		t.Fatalf("submit after window: dup=%v err=%v", dup, err)
	}
	if sink.calls != 2 {
		t.Fatalf("intake called %d times, want 2", sink.calls)
	}
}

func TestSubmitDistinguishesDifferentIdentities(t *testing.T) {
	sink := &countingIntake{}
	svc := NewService(newFakeKeyStore(), sink, logger.New("development"))

	if _, dup, _ := svc.Submit(context.Background(), intake.CaptureInput{Email: "a@example.com", Source: "website"}); dup {
		t.Fatal("first identity flagged duplicate")
	}
	if _, dup, _ := svc.Submit(context.Background(), intake.CaptureInput{Email: "b@example.com", Source: "website"}); dup {
		t.Fatal("different identity flagged duplicate")
	}
	if sink.calls != 2 {
		t.Fatalf("intake called %d times, want 2", sink.calls)
	}
}

func TestCreateKeyReturnsPlaintextOnce(t *testing.T) {
	store := newFakeKeyStore()
	svc := NewService(store, &countingIntake{}, logger.New("development"))

	created, err := svc.CreateKey(context.Background(), "Main website", []string{" Example.COM ", ""})
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if len(created.Plaintext) != 4+64 || created.Plaintext[:4] != "cap_" {
		t.Fatalf("unexpected plaintext shape %q", created.Plaintext)
	}
	if created.Key.KeyHash == created.Plaintext {
		t.Fatal("plaintext stored instead of hash")
	}
	if repository.HashKey(created.Plaintext) != created.Key.KeyHash {
		t.Fatal("stored hash does not match plaintext")
	}
	if len(created.Key.AllowedDomains) != 1 || created.Key.AllowedDomains[0] != "example.com" {
		t.Fatalf("domains not normalized: %v", created.Key.AllowedDomains)
	}
}

func TestCreateKeyRequiresName(t *testing.T) {
	svc := NewService(newFakeKeyStore(), &countingIntake{}, logger.New("development"))

	_, err := svc.CreateKey(context.Background(), "  ", nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRevokeUnknownKey(t *testing.T) {
	svc := NewService(newFakeKeyStore(), &countingIntake{}, logger.New("development"))

	if err := svc.RevokeKey(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestIsDomainAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"https://example.com/contact", []string{"example.com"}, true},
		{"https://www.example.com", []string{"example.com"}, false},
		{"https://www.example.com", []string{"*.example.com"}, true},
		{"https://example.com", []string{"*.example.com"}, true},
		{"https://evil.com", []string{"example.com"}, false},
		{"https://anything.test", []string{"*"}, true},
		{"", []string{"example.com"}, false},
		{"https://notexample.com", []string{"*.example.com"}, false},
	}

	for _, tt := range tests {
		if got := isDomainAllowed(tt.origin, tt.allowed); got != tt.want {
			t.Errorf("isDomainAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
		}
	}
}
