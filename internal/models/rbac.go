package models

import (
	"github.com/google/uuid"
)

type Role struct {
	ID   uuid.UUID
	Name string
}

// Permission code is shaped as "resource:action", e.g. "products:write"
type Permission struct {
	ID   uuid.UUID
	Code string
}
