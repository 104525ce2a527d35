package repo

import (
	"context"
	"errors"
	"time"

	"github.com/AyanDgr8/wa-prod/internal/model"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("repo: not found")

type MessageRepository interface {
	// Create persists a new outbound message in pending state and assigns
	// its id. ScheduledAt nil means "send immediately".
	Create(ctx context.Context, m *model.Message) error

	// CreateBatch persists a batch of pending rows in one transaction and
	// assigns their ids. Either every row lands or none do, so a mid-batch
	// failure cannot leave a partially scheduled batch behind.
	CreateBatch(ctx context.Context, msgs []model.Message) error

	// ClaimDue leases up to limit due scheduled messages: pending rows with
	// scheduled_at <= now, earliest first, flipped to sending so an
	// overlapping sweep cannot claim them again.
	ClaimDue(ctx context.Context, limit int) ([]model.Message, error)

	// Release returns leased rows to pending, e.g. when their tenant's
	// connection could not be resurrected this tick.
	Release(ctx context.Context, ids []int64) error

	// ResetStuck returns sending rows older than the cutoff to pending.
	// Recovers leases leaked by a crash mid-sweep.
	ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error)

	// MarkSent transitions a pending/sending row to sent and records the
	// transport message id.
	MarkSent(ctx context.Context, id int64, transportMessageID string) error

	// MarkFailed transitions a row to failed with a reason, bumping the
	// attempt count.
	MarkFailed(ctx context.Context, id int64, reason string) error

	// FindByID resolves one message by ledger id, scoped by tenant.
	// ErrNotFound when the tenant has no such message.
	FindByID(ctx context.Context, tenantID string, id int64) (*model.Message, error)

	// FindByTransportID resolves the internal message for a transport-level
	// id, scoped by tenant. ErrNotFound when the message is not tracked.
	FindByTransportID(ctx context.Context, tenantID, transportMessageID string) (*model.Message, error)

	// UpdateStatus applies a monotonic status transition. It reports whether
	// the transition was applied; illegal or regressive transitions no-op.
	UpdateStatus(ctx context.Context, id int64, status model.Status) (bool, error)

	// ListByTenant pages a tenant's messages, newest first. An empty status
	// returns all of them.
	ListByTenant(ctx context.Context, tenantID string, status model.Status, limit, offset int) ([]model.Message, error)
}

type TimelineRepository interface {
	// Record upserts the timeline row for a transport message and sets the
	// timestamp column matching status, but only if that column is still
	// null. Replaying an event is a no-op.
	Record(ctx context.Context, tenantID, recipient, transportMessageID string, status model.Status, at time.Time) error
}

type CredentialRepository interface {
	// Save upserts a tenant's opaque session credential blob.
	Save(ctx context.Context, tenantID string, blob []byte) error
	// Load returns the persisted blob, or nil when none exists.
	Load(ctx context.Context, tenantID string) ([]byte, error)
	Delete(ctx context.Context, tenantID string) error
}

type SubscriptionRepository interface {
	// ActiveQuota returns the package name plus purchased and consumed
	// counts for the tenant's active subscription window. ErrNotFound when
	// no window is active.
	ActiveQuota(ctx context.Context, tenantID string) (pkg string, purchased, consumed int, err error)
	// IncrementConsumed charges n messages against the active window.
	IncrementConsumed(ctx context.Context, tenantID string, n int) error
}
