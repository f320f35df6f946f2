package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// UserStore implements domain.UserStore on the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// UpsertOrders replaces the order accounts of userPK, creating the user
// document on first use.
func (s *UserStore) UpsertOrders(ctx context.Context, userPK string, orderAccounts json.RawMessage) error {
	const query = `
		INSERT INTO users (user_pk, order_accounts)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (user_pk) DO UPDATE SET
			order_accounts = EXCLUDED.order_accounts,
			updated_at     = NOW()`

	if _, err := s.pool.Exec(ctx, query, userPK, jsonOrNull(orderAccounts)); err != nil {
		return fmt.Errorf("postgres: upsert orders for %s: %w", userPK, err)
	}
	return nil
}

// Get returns the user document for userPK.
func (s *UserStore) Get(ctx context.Context, userPK string) (domain.User, error) {
	const query = `SELECT user_pk, order_accounts, updated_at FROM users WHERE user_pk = $1`

	var (
		u   domain.User
		raw []byte
	)
	err := s.pool.QueryRow(ctx, query, userPK).Scan(&u.UserPK, &raw, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", userPK, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", userPK, err)
	}
	u.OrderAccounts = json.RawMessage(raw)
	return u, nil
}
