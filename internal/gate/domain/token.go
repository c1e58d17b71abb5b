package domain

import "time"

// APIToken is the stored form of a bearer token. Only the SHA-256 of the
// token is kept; Prefix is the first characters of the raw token so owners
// can tell their tokens apart.
type APIToken struct {
	ID        string
	UserID    string
	TokenHash string
	Prefix    string
	CreatedAt time.Time
	ExpiresAt *time.Time // nil never expires
}

func (t APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
