package models

import (
	"time"
)

// Session is what Login and Refresh hand back to the transport layer:
// a signed access token, the raw refresh token (its digest is what got
// stored) and an independent CSRF token for the double-submit check.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CSRFToken        string
}
