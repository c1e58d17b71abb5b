package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/domain"
)

type apiTokensRepo struct {
	q querier
}

func (r *apiTokensRepo) CreateAPIToken(ctx context.Context, t domain.APIToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO api_tokens (id, user_id, token_hash, token_prefix, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.TokenHash, t.Prefix, t.CreatedAt.UTC(), utc(t.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *apiTokensRepo) GetUserByAPITokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.token, u.reset_token_hash,
		       u.reset_token_expires_at, u.created_at, u.updated_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1 AND (t.expires_at IS NULL OR t.expires_at > $2)`,
		tokenHash, now.UTC(),
	))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *apiTokensRepo) ListAPITokens(ctx context.Context, userID string) ([]domain.APIToken, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, user_id, token_hash, token_prefix, created_at, expires_at
		FROM api_tokens WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.APIToken
	for rows.Next() {
		var t domain.APIToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Prefix, &t.CreatedAt, &t.ExpiresAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		t.ExpiresAt = utc(t.ExpiresAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *apiTokensRepo) RevokeAPIToken(ctx context.Context, userID, tokenHash string) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM api_tokens WHERE user_id = $1 AND token_hash = $2`, userID, tokenHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *apiTokensRepo) RevokeAPITokenByID(ctx context.Context, userID, id string) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM api_tokens WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *apiTokensRepo) RevokeAllAPITokens(ctx context.Context, userID string) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM api_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *apiTokensRepo) DeleteExpiredAPITokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
