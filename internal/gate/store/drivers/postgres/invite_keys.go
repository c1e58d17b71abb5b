package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/domain"
	"github.com/aussiebroadwan/gate/internal/gate/store"
	"github.com/jackc/pgx/v5"
)

type inviteKeysRepo struct {
	q querier
}

func scanInviteKey(row pgx.Row) (domain.InviteKey, error) {
	var (
		k         domain.InviteKey
		createdBy *string
	)
	if err := row.Scan(&k.Key, &createdBy, &k.UsesRemaining, &k.CreatedAt); err != nil {
		return domain.InviteKey{}, err
	}
	k.CreatedBy = deref(createdBy)
	k.CreatedAt = k.CreatedAt.UTC()
	return k, nil
}

func (r *inviteKeysRepo) CreateInviteKey(ctx context.Context, k domain.InviteKey) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO invite_keys (invite_key, created_by, uses_remaining, created_at)
		VALUES ($1, $2, $3, $4)`,
		k.Key, nullString(k.CreatedBy), k.UsesRemaining, k.CreatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *inviteKeysRepo) GetInviteKey(ctx context.Context, key string) (domain.InviteKey, error) {
	k, err := scanInviteKey(r.q.QueryRow(ctx, `
		SELECT invite_key, created_by, uses_remaining, created_at
		FROM invite_keys WHERE invite_key = $1`, key))
	if err != nil {
		return domain.InviteKey{}, mapNotFound(err)
	}
	return k, nil
}

func (r *inviteKeysRepo) ConsumeInviteKey(ctx context.Context, key string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE invite_keys
		SET uses_remaining = CASE WHEN uses_remaining = $1 THEN uses_remaining ELSE uses_remaining - 1 END
		WHERE invite_key = $2 AND uses_remaining > 0`,
		domain.UnlimitedUses, key,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetInviteKey(ctx, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return err
	}
	return store.ErrExhausted
}

func (r *inviteKeysRepo) ListInviteKeysByCreator(ctx context.Context, userID string) ([]domain.InviteKey, error) {
	rows, err := r.q.Query(ctx, `
		SELECT invite_key, created_by, uses_remaining, created_at
		FROM invite_keys WHERE created_by = $1
		ORDER BY created_at DESC, invite_key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InviteKey
	for rows.Next() {
		k, err := scanInviteKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
