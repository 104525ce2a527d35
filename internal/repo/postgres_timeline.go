package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AyanDgr8/wa-prod/internal/model"
)

type PostgresTimelineRepo struct {
	db *sql.DB
}

func NewPostgresTimelineRepo(db *sql.DB) *PostgresTimelineRepo {
	return &PostgresTimelineRepo{db: db}
}

var _ TimelineRepository = (*PostgresTimelineRepo)(nil)

// Record upserts on (tenant_id, transport_message_id) and COALESCEs the
// existing column value first, so a timestamp is written exactly once and
// replayed events no-op.
func (r *PostgresTimelineRepo) Record(ctx context.Context, tenantID, recipient, transportMessageID string, status model.Status, at time.Time) error {
	col := model.TimelineColumn(status)
	if col == "" {
		return nil
	}

	// col comes from a fixed mapping, never from input.
	query := fmt.Sprintf(`
		INSERT INTO message_timeline (tenant_id, recipient, transport_message_id, %[1]s)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, transport_message_id)
		DO UPDATE SET %[1]s = COALESCE(message_timeline.%[1]s, EXCLUDED.%[1]s)
	`, col)

	_, err := r.db.ExecContext(ctx, query, tenantID, recipient, transportMessageID, at.UTC())
	return err
}
