package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/domain"
	"github.com/aussiebroadwan/gate/internal/gate/store"
)

const userColumns = `id, username, email, password_hash, token, reset_token_hash, reset_token_expires_at, created_at, updated_at`

type usersRepo struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                  domain.User
		token, resetHash   sql.NullString
		resetExp           sql.NullInt64
		createdAt, updated int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &token, &resetHash, &resetExp, &createdAt, &updated); err != nil {
		return domain.User{}, err
	}
	u.LegacyToken = token.String
	u.ResetTokenHash = resetHash.String
	u.ResetTokenExpiresAt = fromNullUnix(resetExp)
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updated)
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, nullString(u.LegacyToken), unix(u.CreatedAt), unix(u.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE lower(username) = lower(?1) OR lower(email) = lower(?1)
		ORDER BY created_at
		LIMIT 1`, identifier))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT count(*) FROM users
		WHERE lower(username) = lower(?) OR lower(email) = lower(?)`, username, email).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *usersRepo) GetUserByLegacyToken(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, store.ErrNotFound
	}
	u, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE token = ?`, token))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, unix(time.Now()), userID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *usersRepo) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET reset_token_hash = ?, reset_token_expires_at = ?, updated_at = ?
		WHERE id = ?`,
		tokenHash, unix(expiresAt), unix(time.Now()), userID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *usersRepo) ConsumeResetToken(ctx context.Context, tokenHash, newHash string, now time.Time) (domain.User, error) {
	if tokenHash == "" {
		return domain.User{}, store.ErrNotFound
	}

	u, err := scanUser(r.q.QueryRowContext(ctx, `
		UPDATE users
		SET password_hash = ?, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = ?
		WHERE reset_token_hash = ? AND reset_token_expires_at > ?
		RETURNING `+userColumns,
		newHash, unix(now), tokenHash, unix(now),
	))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, err
	}

	var exists int
	err = r.q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE reset_token_hash = ?`, tokenHash).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.User{}, store.ErrNotFound
	case err != nil:
		return domain.User{}, err
	default:
		return domain.User{}, store.ErrExpired
	}
}

func (r *usersRepo) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expires_at = NULL
		WHERE reset_token_hash IS NOT NULL AND reset_token_expires_at <= ?`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
