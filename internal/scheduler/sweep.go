package scheduler

import (
	"context"
	"log/slog"

	"github.com/AyanDgr8/wa-prod/internal/config"
	"github.com/AyanDgr8/wa-prod/internal/connection"
	"github.com/AyanDgr8/wa-prod/internal/model"
	"github.com/AyanDgr8/wa-prod/internal/repo"
)

// Connector brings a tenant's connection up, resuming from stored
// credentials when the tenant has no live session.
type Connector interface {
	Connect(ctx context.Context, tenantID string) (connection.ConnectResult, error)
}

// BatchSender delivers one tenant's claimed messages in order.
type BatchSender interface {
	SendBatch(ctx context.Context, tenantID string, msgs []model.Message) (int, error)
}

// Sweep is the per-tick body of the scheduler: recover stuck claims, claim
// due messages, and hand each tenant's share to the send pipeline.
type Sweep struct {
	messages  repo.MessageRepository
	connector Connector
	sender    BatchSender
	cfg       config.SchedulerConfig
}

func NewSweep(messages repo.MessageRepository, connector Connector, sender BatchSender, cfg config.SchedulerConfig) *Sweep {
	return &Sweep{
		messages:  messages,
		connector: connector,
		sender:    sender,
		cfg:       cfg,
	}
}

// Run executes one sweep. Claimed messages that cannot be delivered are
// released back to pending so a later tick picks them up again.
func (s *Sweep) Run(ctx context.Context) {
	reset, err := s.messages.ResetStuck(ctx, s.cfg.StuckAfter)
	if err != nil {
		slog.Error("failed to reset stuck messages", "error", err)
	} else if reset > 0 {
		slog.Warn("reset stuck messages back to pending", "count", reset)
	}

	claimed, err := s.messages.ClaimDue(ctx, s.cfg.BatchSize)
	if err != nil {
		slog.Error("failed to claim due messages", "error", err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	// Group by tenant, preserving the due order within each group.
	order := make([]string, 0, 4)
	byTenant := make(map[string][]model.Message)
	for _, m := range claimed {
		if _, ok := byTenant[m.TenantID]; !ok {
			order = append(order, m.TenantID)
		}
		byTenant[m.TenantID] = append(byTenant[m.TenantID], m)
	}

	for _, tenantID := range order {
		batch := byTenant[tenantID]

		res, err := s.connector.Connect(ctx, tenantID)
		if err != nil {
			slog.Warn("skipping tenant, connection unavailable",
				"tenant", tenantID, "claimed", len(batch), "error", err)
			s.release(ctx, batch)
			continue
		}
		if !res.Connected {
			// Stored credentials were not enough; the tenant has to scan
			// a fresh code before these can go out.
			slog.Warn("skipping tenant, handshake required",
				"tenant", tenantID, "claimed", len(batch))
			s.release(ctx, batch)
			continue
		}

		sent, err := s.sender.SendBatch(ctx, tenantID, batch)
		if err != nil {
			slog.Warn("batch rejected, releasing claims",
				"tenant", tenantID, "claimed", len(batch), "error", err)
			s.release(ctx, batch)
			continue
		}

		slog.Info("scheduled batch delivered",
			"tenant", tenantID, "claimed", len(batch), "sent", sent)
	}
}

func (s *Sweep) release(ctx context.Context, batch []model.Message) {
	ids := make([]int64, 0, len(batch))
	for _, m := range batch {
		ids = append(ids, m.ID)
	}
	if err := s.messages.Release(ctx, ids); err != nil {
		slog.Error("failed to release claimed messages", "ids", ids, "error", err)
	}
}
