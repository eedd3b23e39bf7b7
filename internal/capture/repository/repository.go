// Package repository persists capture API keys. Keys are random,
// hashed at rest; only the prefix survives for display.
package repository

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrKeyNotFound = errors.New("capture key not found")

// Key is one website's credential for the public capture endpoint.
type Key struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	KeyHash        string     `json:"-"`
	KeyPrefix      string     `json:"keyPrefix"`
	AllowedDomains []string   `json:"allowedDomains"`
	IsActive       bool       `json:"isActive"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// GenerateKey creates a new random key. The plaintext is returned once
// and never stored; lookups go through the hash.
func GenerateKey() (plaintext, hash, prefix string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", err
	}
	plaintext = "cap_" + hex.EncodeToString(raw)
	h := sha256.Sum256([]byte(plaintext))
	hash = hex.EncodeToString(h[:])
	prefix = plaintext[:12] // "cap_" + 8 hex chars
	return plaintext, hash, prefix, nil
}

// HashKey hashes a presented plaintext key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const keyColumns = `
	id, name, key_hash, key_prefix, allowed_domains, is_active, last_used_at, created_at, updated_at`

func scanKey(row pgx.Row) (Key, error) {
	var k Key
	err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.AllowedDomains,
		&k.IsActive, &k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt)
	return k, err
}

func (r *Repository) Create(ctx context.Context, name, keyHash, keyPrefix string, allowedDomains []string) (Key, error) {
	if allowedDomains == nil {
		allowedDomains = []string{}
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO GD_capture_keys (name, key_hash, key_prefix, allowed_domains)
		VALUES ($1, $2, $3, $4)
		RETURNING `+keyColumns,
		name, keyHash, keyPrefix, allowedDomains,
	)
	return scanKey(row)
}

// GetActiveByHash resolves a presented key. Revoked keys never match.
func (r *Repository) GetActiveByHash(ctx context.Context, keyHash string) (Key, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+keyColumns+`
		FROM GD_capture_keys
		WHERE key_hash = $1 AND is_active = true
	`, keyHash)
	key, err := scanKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Key{}, ErrKeyNotFound
	}
	return key, err
}

func (r *Repository) List(ctx context.Context) ([]Key, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+keyColumns+`
		FROM GD_capture_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *Repository) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE GD_capture_keys SET is_active = false, updated_at = now()
		WHERE id = $1 AND is_active = true
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// TouchLastUsed records key usage. Best effort; callers ignore errors.
func (r *Repository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE GD_capture_keys SET last_used_at = now() WHERE id = $1
	`, id)
	return err
}
