package models

import (
	"github.com/google/uuid"
)

// Principal is derived per request from a verified access token plus a
// fresh user lookup. It is never persisted.
type Principal struct {
	UserID       uuid.UUID
	Email        string
	Roles        []string
	TokenVersion int
	IsActive     bool
}
