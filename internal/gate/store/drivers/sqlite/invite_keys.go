package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/domain"
	"github.com/aussiebroadwan/gate/internal/gate/store"
)

type inviteKeysRepo struct {
	q querier
}

func scanInviteKey(row rowScanner) (domain.InviteKey, error) {
	var (
		k         domain.InviteKey
		createdBy sql.NullString
		createdAt int64
	)
	if err := row.Scan(&k.Key, &createdBy, &k.UsesRemaining, &createdAt); err != nil {
		return domain.InviteKey{}, err
	}
	k.CreatedBy = createdBy.String
	k.CreatedAt = fromUnix(createdAt)
	return k, nil
}

func (r *inviteKeysRepo) CreateInviteKey(ctx context.Context, k domain.InviteKey) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO invite_keys (invite_key, created_by, uses_remaining, created_at)
		VALUES (?, ?, ?, ?)`,
		k.Key, nullString(k.CreatedBy), k.UsesRemaining, unix(k.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *inviteKeysRepo) GetInviteKey(ctx context.Context, key string) (domain.InviteKey, error) {
	k, err := scanInviteKey(r.q.QueryRowContext(ctx, `
		SELECT invite_key, created_by, uses_remaining, created_at
		FROM invite_keys WHERE invite_key = ?`, key))
	if err != nil {
		return domain.InviteKey{}, mapNotFound(err)
	}
	return k, nil
}

func (r *inviteKeysRepo) ConsumeInviteKey(ctx context.Context, key string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE invite_keys
		SET uses_remaining = CASE WHEN uses_remaining = ? THEN uses_remaining ELSE uses_remaining - 1 END
		WHERE invite_key = ? AND uses_remaining > 0`,
		domain.UnlimitedUses, key,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Nothing consumed: tell a missing key from a used-up one.
	if _, err := r.GetInviteKey(ctx, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return err
	}
	return store.ErrExhausted
}

func (r *inviteKeysRepo) ListInviteKeysByCreator(ctx context.Context, userID string) ([]domain.InviteKey, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT invite_key, created_by, uses_remaining, created_at
		FROM invite_keys WHERE created_by = ?
		ORDER BY created_at DESC, invite_key`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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
