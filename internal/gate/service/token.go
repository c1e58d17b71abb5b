package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/domain"
	"github.com/aussiebroadwan/gate/internal/gate/store"
	"github.com/aussiebroadwan/gate/pkg/cryptox"
	"github.com/aussiebroadwan/gate/pkg/idx"
	"github.com/aussiebroadwan/gate/pkg/slogx"
)

// TokenService issues and manages opaque API tokens. Only the SHA-256 of a
// token is stored; the raw value is returned once, at issue time.
type TokenService struct {
	Store store.Store
	TTL   time.Duration // zero means tokens never expire
	Now   func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue creates a token for userID through repo, so callers can issue inside
// a transaction.
func (s *TokenService) Issue(ctx context.Context, repo store.APITokens, userID string) (string, error) {
	raw, err := cryptox.GenerateHexToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	now := s.now()
	tok := domain.APIToken{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		TokenHash: cryptox.HashToken(raw),
		Prefix:    cryptox.TokenPrefix(raw),
		CreatedAt: now,
	}
	if s.TTL > 0 {
		exp := now.Add(s.TTL)
		tok.ExpiresAt = &exp
	}

	if err := repo.CreateAPIToken(ctx, tok); err != nil {
		return "", err
	}
	return raw, nil
}

// Validate resolves a raw token to its owner. The api_tokens table is
// consulted first; the legacy users.token column only when no row matches.
// Unknown, expired and revoked tokens are ErrInvalidToken; store failures
// are returned unchanged.
func (s *TokenService) Validate(ctx context.Context, raw string) (domain.User, error) {
	if raw == "" {
		return domain.User{}, ErrInvalidToken
	}

	u, err := s.Store.APITokens().GetUserByAPITokenHash(ctx, cryptox.HashToken(raw), s.now())
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	u, err = s.Store.Users().GetUserByLegacyToken(ctx, raw)
	if err == nil {
		slogx.FromContext(ctx).Debug("accepted legacy user token", slog.String("user_id", u.ID))
		return u, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidToken
	}
	return domain.User{}, err
}

func (s *TokenService) List(ctx context.Context, userID string) ([]domain.APIToken, error) {
	return s.Store.APITokens().ListAPITokens(ctx, userID)
}

// Revoke deletes one of userID's tokens, addressed by raw token or by id.
// A token owned by someone else reports ErrTokenNotFound.
func (s *TokenService) Revoke(ctx context.Context, userID, raw, id string) error {
	var (
		ok  bool
		err error
	)
	switch {
	case raw != "":
		ok, err = s.Store.APITokens().RevokeAPIToken(ctx, userID, cryptox.HashToken(raw))
	case id != "":
		ok, err = s.Store.APITokens().RevokeAPITokenByID(ctx, userID, id)
	default:
		return &ValidationError{Reason: "token field required"}
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotFound
	}
	return nil
}
