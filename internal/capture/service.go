// Package capture is the public intake surface: website forms and
// tracking snippets post here with a per-site API key, and submissions
// flow into the lead book through the intake service.
package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"growthdesk_backend/internal/capture/repository"
	"growthdesk_backend/internal/leads/intake"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

// duplicateWindow suppresses identical submissions arriving close
// together, which form plugins produce on double-clicks and webhook
// retries.
const duplicateWindow = 60 * time.Second

// KeyStore is the persistence surface for capture keys.
type KeyStore interface {
	Create(ctx context.Context, name, keyHash, keyPrefix string, allowedDomains []string) (repository.Key, error)
	List(ctx context.Context) ([]repository.Key, error)
	Revoke(ctx context.Context, id uuid.UUID) error
}

// Intake folds captures into the lead book.
type Intake interface {
	Capture(ctx context.Context, input intake.CaptureInput) (*intake.Outcome, error)
}

// CreatedKey carries the one-time plaintext alongside the stored record.
type CreatedKey struct {
	Key       repository.Key `json:"key"`
	Plaintext string         `json:"plaintext"`
}

type Service struct {
	keys   KeyStore
	intake Intake
	log    *logger.Logger

	mu     sync.Mutex
	recent map[string]time.Time
	now    func() time.Time
}

func NewService(keys KeyStore, intakeSvc Intake, log *logger.Logger) *Service {
	return &Service{
		keys:   keys,
		intake: intakeSvc,
		log:    log,
		recent: make(map[string]time.Time),
		now:    time.Now,
	}
}

// CreateKey generates a new capture key. The plaintext appears in this
// response only.
func (s *Service) CreateKey(ctx context.Context, name string, allowedDomains []string) (CreatedKey, error) {
	name = sanitize.Text(name)
	if name == "" {
		return CreatedKey{}, apperr.Validation("key name is required")
	}

	cleaned := make([]string, 0, len(allowedDomains))
	for _, domain := range allowedDomains {
		if d := strings.ToLower(strings.TrimSpace(domain)); d != "" {
			cleaned = append(cleaned, d)
		}
	}

	plaintext, hash, prefix, err := repository.GenerateKey()
	if err != nil {
		return CreatedKey{}, fmt.Errorf("generate capture key: %w", err)
	}

	key, err := s.keys.Create(ctx, name, hash, prefix, cleaned)
	if err != nil {
		return CreatedKey{}, fmt.Errorf("store capture key: %w", err)
	}

	s.log.Info("capture key created", "key_id", key.ID, "name", name)
	return CreatedKey{Key: key, Plaintext: plaintext}, nil
}

func (s *Service) ListKeys(ctx context.Context) ([]repository.Key, error) {
	return s.keys.List(ctx)
}

func (s *Service) RevokeKey(ctx context.Context, id uuid.UUID) error {
	if err := s.keys.Revoke(ctx, id); err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return apperr.NotFound("capture key not found")
		}
		return fmt.Errorf("revoke capture key: %w", err)
	}
	s.log.Info("capture key revoked", "key_id", id)
	return nil
}

// Submit runs one public capture. Duplicate submissions inside the
// window are acknowledged without touching the lead book.
func (s *Service) Submit(ctx context.Context, input intake.CaptureInput) (*intake.Outcome, bool, error) {
	if s.isDuplicate(input) {
		s.log.Info("duplicate capture suppressed",
			"source", input.Source, "source_domain", input.SourceDomain)
		return nil, true, nil
	}

	outcome, err := s.intake.Capture(ctx, input)
	if err != nil {
		return nil, false, err
	}
	return outcome, false, nil
}

// isDuplicate fingerprints the capture identity and checks the sliding
// window. The map is pruned on each pass; traffic volume keeps it small.
func (s *Service) isDuplicate(input intake.CaptureInput) bool {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.ToLower(strings.TrimSpace(input.Email)),
		strings.TrimSpace(input.Phone),
		strings.ToLower(input.Source),
		input.SourceDomain,
	}, "|")))
	fingerprint := hex.EncodeToString(sum[:])

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for fp, seen := range s.recent {
		if now.Sub(seen) > duplicateWindow {
			delete(s.recent, fp)
		}
	}

	if seen, ok := s.recent[fingerprint]; ok && now.Sub(seen) <= duplicateWindow {
		return true
	}
	s.recent[fingerprint] = now
	return false
}
