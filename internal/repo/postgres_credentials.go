package repo

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresCredentialRepo struct {
	db *sql.DB
}

func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

var _ CredentialRepository = (*PostgresCredentialRepo)(nil)

func (r *PostgresCredentialRepo) Save(ctx context.Context, tenantID string, blob []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenant_credentials (tenant_id, blob, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (tenant_id)
		DO UPDATE SET blob = EXCLUDED.blob, updated_at = now()
	`, tenantID, blob)
	return err
}

func (r *PostgresCredentialRepo) Load(ctx context.Context, tenantID string) ([]byte, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT blob FROM tenant_credentials WHERE tenant_id = $1
	`, tenantID).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return blob, nil
}

func (r *PostgresCredentialRepo) Delete(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM tenant_credentials WHERE tenant_id = $1
	`, tenantID)
	return err
}
