package repo

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresSubscriptionRepo struct {
	db *sql.DB
}

func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)

func (r *PostgresSubscriptionRepo) ActiveQuota(ctx context.Context, tenantID string) (string, int, int, error) {
	var pkg string
	var purchased, consumed int
	err := r.db.QueryRowContext(ctx, `
		SELECT package, purchased, consumed
		FROM subscriptions
		WHERE tenant_id = $1
		  AND starts_at <= now()
		  AND expires_at > now()
		ORDER BY expires_at DESC
		LIMIT 1
	`, tenantID).Scan(&pkg, &purchased, &consumed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, 0, ErrNotFound
		}
		return "", 0, 0, err
	}
	return pkg, purchased, consumed, nil
}

func (r *PostgresSubscriptionRepo) IncrementConsumed(ctx context.Context, tenantID string, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET consumed = consumed + $2
		WHERE tenant_id = $1
		  AND starts_at <= now()
		  AND expires_at > now()
	`, tenantID, n)
	return err
}
