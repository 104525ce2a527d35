// Package reconcile folds delivery receipts from live sessions back into
// the message ledger and timeline.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/AyanDgr8/wa-prod/internal/model"
	"github.com/AyanDgr8/wa-prod/internal/repo"
	"github.com/AyanDgr8/wa-prod/internal/transport"
)

// StatusCache mirrors ledger transitions into a fast lookup store. Optional;
// failures must never affect reconciliation.
type StatusCache interface {
	StoreStatus(ctx context.Context, tenantID string, messageID int64, status model.Status, transportMessageID string)
}

// Reconciler consumes receipt events off a bounded queue. Receipts are
// advisory: anything that cannot be applied is dropped with a log line,
// never retried, so a bad receipt cannot wedge a session's read loop.
type Reconciler struct {
	messages repo.MessageRepository
	timeline repo.TimelineRepository
	cache    StatusCache

	events chan transport.ReceiptEvent

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(messages repo.MessageRepository, timeline repo.TimelineRepository, cache StatusCache, buffer int) *Reconciler {
	if buffer <= 0 {
		buffer = 256
	}
	return &Reconciler{
		messages: messages,
		timeline: timeline,
		cache:    cache,
		events:   make(chan transport.ReceiptEvent, buffer),
	}
}

// Enqueue hands a receipt to the consumer without blocking. When the queue
// is full the receipt is dropped; the ledger stays at its last known status.
func (r *Reconciler) Enqueue(ev transport.ReceiptEvent) {
	select {
	case r.events <- ev:
	default:
		slog.Warn("receipt queue full, dropping receipt",
			"tenant", ev.TenantID, "transport_message_id", ev.TransportMessageID, "code", ev.Code)
	}
}

// Start launches the consumer goroutine. Safe to call once.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-r.events:
				r.apply(ctx, ev)
			}
		}
	}()
}

// Stop drains nothing: queued receipts not yet applied are lost, which is
// acceptable because a later receipt or sweep re-derives the same state.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
}

func (r *Reconciler) apply(ctx context.Context, ev transport.ReceiptEvent) {
	status := model.StatusFromCode(ev.Code)

	msg, err := r.messages.FindByTransportID(ctx, ev.TenantID, ev.TransportMessageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Receipt for a message we never sent (or one sent by another
			// deployment sharing the account). Drop it.
			slog.Debug("receipt for unknown message",
				"tenant", ev.TenantID, "transport_message_id", ev.TransportMessageID)
			return
		}
		slog.Error("failed to look up receipt target",
			"tenant", ev.TenantID, "transport_message_id", ev.TransportMessageID, "error", err)
		return
	}

	advanced, err := r.messages.UpdateStatus(ctx, msg.ID, status)
	if err != nil {
		slog.Error("failed to apply receipt",
			"message_id", msg.ID, "status", status, "error", err)
		return
	}

	// The timeline is written even when the ledger did not advance: a late
	// or replayed receipt may still fill a hole in the timeline, and the
	// write-once upsert makes replays harmless.
	if err := r.timeline.Record(ctx, ev.TenantID, msg.Recipient, ev.TransportMessageID, status, time.Now().UTC()); err != nil {
		slog.Error("failed to record receipt time",
			"message_id", msg.ID, "status", status, "error", err)
	}

	if advanced && r.cache != nil {
		r.cache.StoreStatus(ctx, ev.TenantID, msg.ID, status, ev.TransportMessageID)
	}

	if advanced {
		slog.Info("receipt applied",
			"tenant", ev.TenantID, "message_id", msg.ID, "status", status)
	}
}
