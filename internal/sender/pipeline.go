// Package sender delivers batches of outbound messages through a tenant's
// live session, one at a time, with per-message retry and inter-message
// pacing, updating the ledger at every step.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/AyanDgr8/wa-prod/internal/config"
	"github.com/AyanDgr8/wa-prod/internal/connection"
	"github.com/AyanDgr8/wa-prod/internal/model"
	"github.com/AyanDgr8/wa-prod/internal/quota"
	"github.com/AyanDgr8/wa-prod/internal/repo"
	"github.com/AyanDgr8/wa-prod/internal/transport"
)

// StatusCache mirrors ledger transitions into a fast lookup store. Optional;
// failures must never affect delivery.
type StatusCache interface {
	StoreStatus(ctx context.Context, tenantID string, messageID int64, status model.Status, transportMessageID string)
}

type Pipeline struct {
	messages repo.MessageRepository
	timeline repo.TimelineRepository
	gate     *quota.Gate
	registry *connection.Registry
	cache    StatusCache
	cfg      config.SenderConfig
}

func NewPipeline(
	messages repo.MessageRepository,
	timeline repo.TimelineRepository,
	gate *quota.Gate,
	registry *connection.Registry,
	cache StatusCache,
	cfg config.SenderConfig,
) *Pipeline {
	return &Pipeline{
		messages: messages,
		timeline: timeline,
		gate:     gate,
		registry: registry,
		cache:    cache,
		cfg:      cfg,
	}
}

// SendBatch sends msgs for one tenant in input order and returns how many
// reached sent. The batch is admitted against the quota as a whole before
// any side effect; a rejected batch sends nothing.
func (p *Pipeline) SendBatch(ctx context.Context, tenantID string, msgs []model.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	if err := p.gate.Admit(ctx, tenantID, len(msgs)); err != nil {
		return 0, err
	}

	sess, ok := p.registry.Session(tenantID)
	if !ok {
		return 0, connection.ErrNotConnected
	}

	// One id per submission, persisted on every row it creates so listings
	// can group the batch. Scheduler-claimed rows keep the id assigned at
	// scheduling time.
	batchID := uuid.NewString()
	for i := range msgs {
		if msgs[i].ID == 0 && msgs[i].BatchID == nil {
			msgs[i].BatchID = &batchID
		}
	}
	slog.Info("sending batch", "tenant", tenantID, "batch", batchID, "size", len(msgs))

	sent := 0
	for i := range msgs {
		m := &msgs[i]

		if p.sendOne(ctx, sess, tenantID, m) {
			sent++
		}

		// Inter-message pacing keeps the send rate under the transport's
		// abuse detection. Contractual, never skipped between messages.
		if i < len(msgs)-1 {
			p.pace(ctx)
		}
	}

	if err := p.gate.Consume(ctx, tenantID, sent); err != nil {
		slog.Error("failed to charge quota", "tenant", tenantID, "sent", sent, "error", err)
	}

	slog.Info("batch finished", "tenant", tenantID, "batch", batchID, "sent", sent, "failed", len(msgs)-sent)
	return sent, nil
}

// sendOne drives a single message to sent or failed. Any panic or error is
// contained here so the rest of the batch keeps going.
func (p *Pipeline) sendOne(ctx context.Context, sess transport.Session, tenantID string, m *model.Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("send panicked",
				"tenant", tenantID,
				"message_id", m.ID,
				"recipient", m.Recipient,
				"panic", r,
			)
			p.markFailed(ctx, m, fmt.Sprintf("panic: %v", r))
			ok = false
		}
	}()

	// The pending row exists before any transport attempt. Scheduler-claimed
	// messages already carry an id.
	if m.ID == 0 {
		if err := p.messages.Create(ctx, m); err != nil {
			slog.Error("failed to persist pending message",
				"tenant", tenantID,
				"recipient", m.Recipient,
				"error", err,
			)
			return false
		}
	}

	initiated := time.Now().UTC()

	transportID, err := p.attemptSend(ctx, sess, m)
	if err != nil {
		slog.Warn("send failed",
			"tenant", tenantID,
			"message_id", m.ID,
			"recipient", m.Recipient,
			"error", err,
		)
		p.markFailed(ctx, m, err.Error())
		return false
	}

	if err := p.messages.MarkSent(ctx, m.ID, transportID); err != nil {
		slog.Error("failed to persist sent status",
			"tenant", tenantID,
			"message_id", m.ID,
			"error", err,
		)
		return false
	}
	m.Status = model.Sent
	m.TransportMessageID = &transportID

	now := time.Now().UTC()
	if err := p.timeline.Record(ctx, tenantID, m.Recipient, transportID, model.Pending, initiated); err != nil {
		slog.Error("failed to record initiated time", "tenant", tenantID, "message_id", m.ID, "error", err)
	}
	if err := p.timeline.Record(ctx, tenantID, m.Recipient, transportID, model.Sent, now); err != nil {
		slog.Error("failed to record sent time", "tenant", tenantID, "message_id", m.ID, "error", err)
	}

	if p.cache != nil {
		p.cache.StoreStatus(ctx, tenantID, m.ID, model.Sent, transportID)
	}

	return true
}

// attemptSend retries transport timeouts up to the configured bound with a
// fixed delay. Any other error is final.
func (p *Pipeline) attemptSend(ctx context.Context, sess transport.Session, m *model.Message) (string, error) {
	content := transport.Content{Text: m.Content}
	if m.HasMedia() {
		content.MediaURL = *m.MediaURL
		if m.Caption != nil {
			content.Caption = *m.Caption
		}
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.RetryAttempts; attempt++ {
		transportID, err := sess.Send(ctx, m.Recipient, content)
		if err == nil {
			return transportID, nil
		}
		lastErr = err

		if !errors.Is(err, transport.ErrSendTimeout) || attempt == p.cfg.RetryAttempts {
			break
		}

		slog.Debug("send timed out, retrying",
			"message_id", m.ID,
			"recipient", m.Recipient,
			"attempt", attempt,
		)

		select {
		case <-time.After(p.cfg.RetryDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (p *Pipeline) markFailed(ctx context.Context, m *model.Message, reason string) {
	if m.ID == 0 {
		return
	}
	if err := p.messages.MarkFailed(ctx, m.ID, reason); err != nil {
		slog.Error("failed to persist failed status", "message_id", m.ID, "error", err)
		return
	}
	m.Status = model.Failed
	if p.cache != nil {
		p.cache.StoreStatus(ctx, m.TenantID, m.ID, model.Failed, "")
	}
}

func (p *Pipeline) pace(ctx context.Context) {
	span := p.cfg.PaceMax - p.cfg.PaceMin
	delay := p.cfg.PaceMin
	if span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}
