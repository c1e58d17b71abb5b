package sqlite

import (
	"context"
	"database/sql"
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
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO api_tokens (id, user_id, token_hash, token_prefix, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.Prefix, unix(t.CreatedAt), nullUnix(t.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *apiTokensRepo) GetUserByAPITokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.token, u.reset_token_hash,
		       u.reset_token_expires_at, u.created_at, u.updated_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = ? AND (t.expires_at IS NULL OR t.expires_at > ?)`,
		tokenHash, unix(now),
	))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *apiTokensRepo) ListAPITokens(ctx context.Context, userID string) ([]domain.APIToken, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, created_at, expires_at
		FROM api_tokens WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.APIToken
	for rows.Next() {
		var (
			t         domain.APIToken
			createdAt int64
			expiresAt sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Prefix, &createdAt, &expiresAt); err != nil {
			return nil, err
		}
		t.CreatedAt = fromUnix(createdAt)
		t.ExpiresAt = fromNullUnix(expiresAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *apiTokensRepo) RevokeAPIToken(ctx context.Context, userID, tokenHash string) (bool, error) {
	return r.deleteOne(ctx, `DELETE FROM api_tokens WHERE user_id = ? AND token_hash = ?`, userID, tokenHash)
}

func (r *apiTokensRepo) RevokeAPITokenByID(ctx context.Context, userID, id string) (bool, error) {
	return r.deleteOne(ctx, `DELETE FROM api_tokens WHERE user_id = ? AND id = ?`, userID, id)
}

func (r *apiTokensRepo) deleteOne(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *apiTokensRepo) RevokeAllAPITokens(ctx context.Context, userID string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM api_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *apiTokensRepo) DeleteExpiredAPITokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at <= ?`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
