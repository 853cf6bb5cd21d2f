package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	IsActive     bool
	IsVerified   bool

	// Monotonically non-decreasing counter embedded in access tokens.
	// Bumping it invalidates every access token issued before the bump.
	TokenVersion int

	CreatedAt time.Time
	UpdatedAt time.Time
}
