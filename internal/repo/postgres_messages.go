package repo

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/AyanDgr8/wa-prod/internal/model"
)

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

var _ MessageRepository = (*PostgresMessageRepo)(nil)

const messageColumns = `
	id, tenant_id, recipient, content, media_url, caption, scheduled_at,
	batch_id, status, transport_message_id, attempt_count, last_error,
	sent_at, created_at, updated_at
`

const insertMessage = `
	INSERT INTO messages (
		tenant_id, recipient, content, media_url, caption, scheduled_at,
		batch_id, status, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	RETURNING id
`

func (r *PostgresMessageRepo) Create(ctx context.Context, m *model.Message) error {
	if m.Status == "" {
		m.Status = model.Pending
	}
	now := time.Now().UTC()

	return r.db.QueryRowContext(ctx, insertMessage,
		m.TenantID, m.Recipient, m.Content, m.MediaURL, m.Caption,
		m.ScheduledAt, m.BatchID, string(m.Status), now,
	).Scan(&m.ID)
}

func (r *PostgresMessageRepo) CreateBatch(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for i := range msgs {
		m := &msgs[i]
		if m.Status == "" {
			m.Status = model.Pending
		}
		if err := tx.QueryRowContext(ctx, insertMessage,
			m.TenantID, m.Recipient, m.Content, m.MediaURL, m.Caption,
			m.ScheduledAt, m.BatchID, string(m.Status), now,
		).Scan(&m.ID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresMessageRepo) ClaimDue(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = 'pending'
		  AND scheduled_at IS NOT NULL
		  AND scheduled_at <= now()
		ORDER BY scheduled_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	if len(msgs) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	now := time.Now().UTC()
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE messages
			SET status = 'sending', updated_at = $2
			WHERE id = $1
		`, m.ID, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for i := range msgs {
		msgs[i].Status = model.Sending
		msgs[i].UpdatedAt = now
	}
	return msgs, nil
}

func (r *PostgresMessageRepo) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE messages
			SET status = 'pending', updated_at = now()
			WHERE id = $1 AND status = 'sending'
		`, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresMessageRepo) ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'pending', updated_at = now()
		WHERE status = 'sending' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresMessageRepo) MarkSent(ctx context.Context, id int64, transportMessageID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'sent',
		    sent_at = now(),
		    transport_message_id = $2,
		    attempt_count = attempt_count + 1,
		    updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'sending')
	`, id, transportMessageID)
	return err
}

func (r *PostgresMessageRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'failed',
		    attempt_count = attempt_count + 1,
		    last_error = $2,
		    updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'sending', 'sent')
	`, id, reason)
	return err
}

func (r *PostgresMessageRepo) FindByID(ctx context.Context, tenantID string, id int64) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)

	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *PostgresMessageRepo) FindByTransportID(ctx context.Context, tenantID, transportMessageID string) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE tenant_id = $1 AND transport_message_id = $2
	`, tenantID, transportMessageID)

	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// UpdateStatus reads the current status and applies the transition only when
// it advances the monotonic order. Read and write share one transaction so a
// concurrent reconciliation cannot interleave a regression.
func (r *PostgresMessageRepo) UpdateStatus(ctx context.Context, id int64, status model.Status) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM messages WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}

	if !model.Advances(model.Status(current), status) {
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET status = $2, updated_at = now() WHERE id = $1
	`, id, string(status)); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (r *PostgresMessageRepo) ListByTenant(ctx context.Context, tenantID string, status model.Status, limit, offset int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE tenant_id = $1
	`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var status string
	var mediaURL, caption, batchID, transportID, lastErr sql.NullString
	var scheduledAt, sentAt sql.NullTime

	if err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.Recipient,
		&m.Content,
		&mediaURL,
		&caption,
		&scheduledAt,
		&batchID,
		&status,
		&transportID,
		&m.AttemptCount,
		&lastErr,
		&sentAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m.Status = model.Status(status)
	if mediaURL.Valid {
		s := mediaURL.String
		m.MediaURL = &s
	}
	if caption.Valid {
		s := caption.String
		m.Caption = &s
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		m.ScheduledAt = &t
	}
	if batchID.Valid {
		s := batchID.String
		m.BatchID = &s
	}
	if transportID.Valid {
		s := transportID.String
		m.TransportMessageID = &s
	}
	if lastErr.Valid {
		s := lastErr.String
		m.LastError = &s
	}
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
