package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/gate/internal/gate/domain"
	"github.com/aussiebroadwan/gate/internal/gate/store"
	"github.com/aussiebroadwan/gate/pkg/slogx"
)

const (
	DefaultInvitePrefix = "BLUE16_"
	mintAttempts        = 5

	// invitePrefixLen is how much of an invite key may appear in logs.
	invitePrefixLen = 4
)

type InviteService struct {
	Store  store.Store
	Prefix string // prepended to generated keys
}

type MintInput struct {
	Key           string `validate:"omitempty,min=4,max=64,invitekey"` // optional custom key
	CreatedBy     string // optional user id
	UsesRemaining int    `validate:"min=1,max=999"`
}

// NormalizeInviteKey trims and upper-cases a submitted key.
func NormalizeInviteKey(k string) string {
	return strings.ToUpper(strings.TrimSpace(k))
}

// Mint stores a new invite key. Without a custom key one is generated as the
// prefix plus eight upper-case hex characters, retrying on collision.
func (s *InviteService) Mint(ctx context.Context, in MintInput) (domain.InviteKey, error) {
	log := slogx.FromContext(ctx)

	in.Key = NormalizeInviteKey(in.Key)
	failed, err := fieldErrors(in)
	if err != nil {
		return domain.InviteKey{}, err
	}
	if fe, ok := failed["UsesRemaining"]; ok {
		if fe.Tag() == "min" {
			return domain.InviteKey{}, &ValidationError{Reason: "uses_remaining must be at least 1"}
		}
		return domain.InviteKey{}, &ValidationError{Reason: "uses_remaining must be at most 999"}
	}
	if _, ok := failed["Key"]; ok {
		return domain.InviteKey{}, &ValidationError{Reason: "Invalid invite_key format"}
	}

	in.CreatedBy = strings.TrimSpace(in.CreatedBy)
	if in.CreatedBy != "" {
		if _, err := s.Store.Users().GetUserByID(ctx, in.CreatedBy); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.InviteKey{}, &ValidationError{Reason: "Missing or invalid created_by"}
			}
			log.Error("failed to look up invite creator", slog.Any("error", err))
			return domain.InviteKey{}, err
		}
	}

	k := domain.InviteKey{CreatedBy: in.CreatedBy, UsesRemaining: in.UsesRemaining}

	if in.Key != "" {
		k.Key = in.Key
		if err := s.Store.InviteKeys().CreateInviteKey(ctx, k); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return domain.InviteKey{}, ErrInviteKeyExists
			}
			log.Error("failed to create invite key", slog.Any("error", err))
			return domain.InviteKey{}, err
		}
		log.Info("invite key minted", slogx.Prefix("invite_prefix", k.Key, invitePrefixLen), slog.Int("uses_remaining", k.UsesRemaining))
		return s.Store.InviteKeys().GetInviteKey(ctx, k.Key)
	}

	for range mintAttempts {
		key, err := s.generate()
		if err != nil {
			return domain.InviteKey{}, err
		}
		k.Key = key
		err = s.Store.InviteKeys().CreateInviteKey(ctx, k)
		if errors.Is(err, store.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			log.Error("failed to create invite key", slog.Any("error", err))
			return domain.InviteKey{}, err
		}
		log.Info("invite key minted", slogx.Prefix("invite_prefix", k.Key, invitePrefixLen), slog.Int("uses_remaining", k.UsesRemaining))
		return s.Store.InviteKeys().GetInviteKey(ctx, k.Key)
	}
	return domain.InviteKey{}, ErrInviteKeyExists
}

func (s *InviteService) generate() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultInvitePrefix
	}
	return prefix + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// Check reports whether key could be used to register, without consuming it.
func (s *InviteService) Check(ctx context.Context, key string) (domain.InviteKey, error) {
	key = NormalizeInviteKey(key)
	if key == "" {
		return domain.InviteKey{}, &ValidationError{Reason: "Missing invite_key"}
	}

	k, err := s.Store.InviteKeys().GetInviteKey(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.InviteKey{}, ErrInviteNotFound
	case err != nil:
		return domain.InviteKey{}, err
	case k.Exhausted():
		return k, ErrInviteExhausted
	}
	return k, nil
}

// ListByCreator returns the keys a user has minted.
func (s *InviteService) ListByCreator(ctx context.Context, userID string) ([]domain.InviteKey, error) {
	return s.Store.InviteKeys().ListInviteKeysByCreator(ctx, userID)
}
