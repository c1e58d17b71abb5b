package postgres

import (
	"context"

	"github.com/aussiebroadwan/gate/internal/gate/store"
	"github.com/jackc/pgx/v5"
)

type txStore struct {
	tx  pgx.Tx
	ctx context.Context
}

func (t *txStore) Commit() error   { return t.tx.Commit(t.ctx) }
func (t *txStore) Rollback() error { return t.tx.Rollback(t.ctx) }

func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, pgx.ErrTxClosed
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.ErrTxClosed
}

func (t *txStore) Users() store.Users           { return &usersRepo{q: t.tx} }
func (t *txStore) InviteKeys() store.InviteKeys { return &inviteKeysRepo{q: t.tx} }
func (t *txStore) APITokens() store.APITokens   { return &apiTokensRepo{q: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil }
