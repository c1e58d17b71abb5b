package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrExpired       = errors.New("store: expired")
	ErrExhausted     = errors.New("store: exhausted")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Repositories hang off it so a transaction-scoped Store can
// hand out the same repositories bound to the transaction.
type Store interface {
	Users() Users
	InviteKeys() InviteKeys
	APITokens() APITokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts a new user (id is provided by the caller as a ULID).
	// Returns ErrAlreadyExists when the username or email is taken; the
	// unique indexes are the final authority on that.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByIdentifier matches the username OR the email, case-insensitively.
	GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error)

	// UsernameOrEmailTaken is the friendly pre-check before CreateUser.
	UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, error)

	// GetUserByLegacyToken looks up the deprecated users.token column.
	GetUserByLegacyToken(ctx context.Context, token string) (domain.User, error)

	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// SetResetToken stores the hash of a password reset token, replacing any
	// previous one.
	SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// ConsumeResetToken replaces the password hash and clears the reset token
	// in one statement. Returns ErrNotFound for an unknown token and
	// ErrExpired when the token exists but has expired; in both cases
	// nothing is written.
	ConsumeResetToken(ctx context.Context, tokenHash, newHash string, now time.Time) (domain.User, error)

	// ClearExpiredResetTokens is housekeeping.
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type InviteKeys interface {
	// CreateInviteKey returns ErrAlreadyExists on a key collision.
	CreateInviteKey(ctx context.Context, k domain.InviteKey) error

	GetInviteKey(ctx context.Context, key string) (domain.InviteKey, error)

	// ConsumeInviteKey checks and decrements uses_remaining in a single
	// conditional UPDATE. The unlimited sentinel is never decremented.
	// Returns ErrNotFound or ErrExhausted when nothing was consumed.
	ConsumeInviteKey(ctx context.Context, key string) error

	// ListInviteKeysByCreator returns keys minted by userID, newest first.
	ListInviteKeysByCreator(ctx context.Context, userID string) ([]domain.InviteKey, error)
}

type APITokens interface {
	CreateAPIToken(ctx context.Context, t domain.APIToken) error

	// GetUserByAPITokenHash joins a live (unexpired) token to its owner.
	GetUserByAPITokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.User, error)

	// ListAPITokens returns the user's tokens, newest first.
	ListAPITokens(ctx context.Context, userID string) ([]domain.APIToken, error)

	// RevokeAPIToken deletes a token only if userID owns it.
	RevokeAPIToken(ctx context.Context, userID, tokenHash string) (bool, error)

	// RevokeAPITokenByID is RevokeAPIToken addressed by the listing id.
	RevokeAPITokenByID(ctx context.Context, userID, id string) (bool, error)

	// RevokeAllAPITokens is used after a password reset.
	RevokeAllAPITokens(ctx context.Context, userID string) (int64, error)

	// DeleteExpiredAPITokens is housekeeping.
	DeleteExpiredAPITokens(ctx context.Context, now time.Time) (int64, error)
}
