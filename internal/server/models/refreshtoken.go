package models

import "time"

// RefreshToken is an opaque, single-use session renewal credential.
type RefreshToken struct {
	ID        string
	AccountID string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
