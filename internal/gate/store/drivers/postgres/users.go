package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/domain"
	"github.com/aussiebroadwan/gate/internal/gate/store"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, username, email, password_hash, token, reset_token_hash, reset_token_expires_at, created_at, updated_at`

type usersRepo struct {
	q querier
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u                domain.User
		token, resetHash *string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&token, &resetHash, &u.ResetTokenExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	u.LegacyToken = deref(token)
	u.ResetTokenHash = deref(resetHash)
	u.ResetTokenExpiresAt = utc(u.ResetTokenExpiresAt)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		u.ID, u.Username, u.Email, u.PasswordHash, nullString(u.LegacyToken), u.CreatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE lower(username) = lower($1) OR lower(email) = lower($1)
		LIMIT 1`, identifier))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, error) {
	var taken bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users WHERE lower(username) = lower($1) OR lower(email) = lower($2)
		)`, username, email).Scan(&taken)
	return taken, err
}

func (r *usersRepo) GetUserByLegacyToken(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, store.ErrNotFound
	}
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE token = $1`, token))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`, newHash, userID)
	if err != nil {
		return err
	}
	return requireOneRow(tag.RowsAffected())
}

func (r *usersRepo) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE users
		SET reset_token_hash = $1, reset_token_expires_at = $2, updated_at = now()
		WHERE id = $3`,
		tokenHash, expiresAt.UTC(), userID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(tag.RowsAffected())
}

func (r *usersRepo) ConsumeResetToken(ctx context.Context, tokenHash, newHash string, now time.Time) (domain.User, error) {
	if tokenHash == "" {
		return domain.User{}, store.ErrNotFound
	}

	u, err := scanUser(r.q.QueryRow(ctx, `
		UPDATE users
		SET password_hash = $1, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $3
		WHERE reset_token_hash = $2 AND reset_token_expires_at > $3
		RETURNING `+userColumns,
		newHash, tokenHash, now.UTC(),
	))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	var exists bool
	if err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE reset_token_hash = $1)`, tokenHash).Scan(&exists); err != nil {
		return domain.User{}, err
	}
	if exists {
		return domain.User{}, store.ErrExpired
	}
	return domain.User{}, store.ErrNotFound
}

func (r *usersRepo) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expires_at = NULL
		WHERE reset_token_hash IS NOT NULL AND reset_token_expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func requireOneRow(n int64) error {
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
