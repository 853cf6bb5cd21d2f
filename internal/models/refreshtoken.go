package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken row as stored. Only the keyed digest of the raw token is
// persisted, never the raw value itself.
type RefreshToken struct {
	ID     uuid.UUID
	UserID uuid.UUID

	// HMAC digest of the raw token, unique lookup key
	TokenHash string

	// All tokens descended from one login share the family and are
	// revocable as a unit
	FamilyID uuid.UUID

	IssuedAt  time.Time
	ExpiresAt time.Time

	RevokedAt         *time.Time // nil while the token is not revoked
	ReplacedByTokenID *uuid.UUID // nil until the token is rotated away

	IP        string
	UserAgent string
}

func (t RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsReplaced reports the token was already rotated away. Presenting such
// a token again is treated as reuse.
func (t RefreshToken) IsReplaced() bool {
	return t.ReplacedByTokenID != nil
}
