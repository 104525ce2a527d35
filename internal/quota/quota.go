// Package quota gates batches against the tenant's subscription window.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/AyanDgr8/wa-prod/internal/repo"
)

var (
	ErrNoSubscription = errors.New("quota: no active subscription")
	ErrQuotaExceeded  = errors.New("quota: message quota exceeded")
)

// Package describes one purchasable plan. The catalog is the single source
// of truth for both the gate and the renewal flow.
type Package struct {
	ValidityDays int
	MessageQuota int
}

var Catalog = map[string]Package{
	"starter": {ValidityDays: 30, MessageQuota: 1000},
	"growth":  {ValidityDays: 30, MessageQuota: 5000},
	"scale":   {ValidityDays: 30, MessageQuota: 20000},
}

// Lookup resolves a package by name.
func Lookup(name string) (Package, bool) {
	p, ok := Catalog[name]
	return p, ok
}

type Gate struct {
	subs repo.SubscriptionRepository
}

func NewGate(subs repo.SubscriptionRepository) *Gate {
	return &Gate{subs: subs}
}

// Remaining returns the messages left in the tenant's active window. For
// catalog packages the quota comes from the catalog; the stored purchased
// count only applies to plans the catalog does not know (custom deals).
func (g *Gate) Remaining(ctx context.Context, tenantID string) (int, error) {
	pkg, purchased, consumed, err := g.subs.ActiveQuota(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrNoSubscription
		}
		return 0, fmt.Errorf("quota: read active subscription: %w", err)
	}
	if p, ok := Lookup(pkg); ok {
		purchased = p.MessageQuota
	}
	return purchased - consumed, nil
}

// Admit checks a batch of the given size against the remaining quota. The
// whole batch is admitted or rejected; there is no partial admission.
func (g *Gate) Admit(ctx context.Context, tenantID string, batchSize int) error {
	remaining, err := g.Remaining(ctx, tenantID)
	if err != nil {
		return err
	}
	if remaining <= 0 || batchSize > remaining {
		return fmt.Errorf("%w: remaining=%d batch=%d", ErrQuotaExceeded, remaining, batchSize)
	}
	return nil
}

// Consume charges n sent messages against the active window.
func (g *Gate) Consume(ctx context.Context, tenantID string, n int) error {
	return g.subs.IncrementConsumed(ctx, tenantID, n)
}
