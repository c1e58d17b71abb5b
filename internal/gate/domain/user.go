package domain

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string // argon2id PHC string, or bcrypt for accounts imported from the old site

	// LegacyToken is the single per-user token the old site issued. It is
	// only consulted when a bearer token matches no api_tokens row.
	LegacyToken string

	ResetTokenHash      string
	ResetTokenExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
