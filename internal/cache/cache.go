// Package cache mirrors message status transitions into Redis so status
// lookups do not hit the ledger. The mirror is best effort: every write
// failure is logged and swallowed, and readers fall back to Postgres when
// a key is missing.
package cache

import (
	"context"
	"time"

	"github.com/AyanDgr8/wa-prod/internal/model"
)

// StatusEntry is the cached view of one message's delivery state.
type StatusEntry struct {
	Status             model.Status `json:"status"`
	TransportMessageID string       `json:"transportMessageId,omitempty"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// StatusStore is the read/write surface over the mirror. Keys are scoped by
// tenant so one tenant can never read another tenant's entries.
type StatusStore interface {
	StoreStatus(ctx context.Context, tenantID string, messageID int64, status model.Status, transportMessageID string)
	Lookup(ctx context.Context, tenantID string, messageID int64) (*StatusEntry, error)
}
