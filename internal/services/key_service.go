// Package services – KeyService
//
// This file implements the KeyService, which owns the lifecycle of single-use
// premium keys: issuance with a cryptographically random token, read-only
// peeks, and atomic consumption. Tokens come from a UUIDv4, hex-encoded,
// uppercased, and truncated to the configured length, so the identifier space
// cannot be enumerated from a counter.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-premium-bot/internal/domain"
	"github.com/tbourn/go-premium-bot/internal/repo"
)

// DefaultTokenLength is the number of hex characters in an issued token
// when no explicit length is configured.
const DefaultTokenLength = 16

// KeyService manages issuance and redemption of premium keys.
type KeyService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// TokenLength caps generated tokens; values outside [8, 32] fall back
	// to DefaultTokenLength.
	TokenLength int
}

// NewKeyService constructs a KeyService with the default token length.
func NewKeyService(db *gorm.DB) *KeyService {
	return &KeyService{DB: db, TokenLength: DefaultTokenLength}
}

// Issue generates a fresh key valid for the given number of days and
// persists it. days must be a positive integer; otherwise ErrInvalidArgument
// is returned and nothing is stored. The user registry is untouched.
func (s *KeyService) Issue(ctx context.Context, days int) (*domain.PremiumKey, error) {
	if days <= 0 {
		return nil, ErrInvalidArgument
	}
	expires := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)

	// A UUIDv4 collision inside the unconsumed set is cryptographically
	// negligible, but the primary key constraint backstops it: retry once
	// on a duplicate instead of overwriting an existing key.
	for attempt := 0; ; attempt++ {
		k, err := repo.CreateKey(ctx, s.DB, s.newToken(), expires)
		if err == nil {
			keysIssued.Inc()
			return k, nil
		}
		if attempt == 0 && isDuplicate(err) {
			continue
		}
		return nil, err
	}
}

// Peek reports the expiry stored for token without consuming it.
// Returns ErrKeyNotFound when the token is unknown.
func (s *KeyService) Peek(ctx context.Context, token string) (*domain.PremiumKey, error) {
	k, err := repo.PeekKey(ctx, s.DB, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return k, nil
}

// Consume atomically removes token from the store and returns its stored
// expiry. At most one concurrent caller succeeds; every other caller gets
// ErrKeyNotFound. An elapsed expiry does not block consumption: it bounds
// the entitlement window, not the validity of the key.
func (s *KeyService) Consume(ctx context.Context, token string) (*domain.PremiumKey, error) {
	k, err := repo.ConsumeKey(ctx, s.DB, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	keysRedeemed.Inc()
	return k, nil
}

// newToken derives a token from a fresh UUIDv4.
func (s *KeyService) newToken() string {
	n := s.TokenLength
	if n < 8 || n > 32 {
		n = DefaultTokenLength
	}
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return raw[:n]
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
