// Package connection owns the per-tenant transport session lifecycle: the
// registry is the single source of truth for "is this tenant online", the
// supervisor brings sessions up and keeps them alive or fails explicitly.
package connection

import (
	"sync"
	"time"

	"github.com/AyanDgr8/wa-prod/internal/model"
	"github.com/AyanDgr8/wa-prod/internal/transport"
)

// Snapshot is a read-only copy of a tenant's registry state.
type Snapshot struct {
	Status     model.ConnectionStatus
	LastUpdate time.Time
	QR         string
}

type entry struct {
	session    transport.Session
	status     model.ConnectionStatus
	lastUpdate time.Time
	qr         string
	gen        uint64
}

// Registry maps tenant ids to their live session handle and status. At most
// one live handle exists per tenant; every handle carries a generation so a
// superseded close or reconnect can detect it is stale and no-op.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextGen uint64
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Create installs a fresh handle for the tenant, replacing any existing
// entry, and returns its generation. The caller is responsible for closing
// the session that was replaced.
func (r *Registry) Create(tenantID string, sess transport.Session) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextGen++
	r.entries[tenantID] = &entry{
		session:    sess,
		status:     model.ConnUninitialized,
		lastUpdate: time.Now().UTC(),
		gen:        r.nextGen,
	}
	return r.nextGen
}

// SetStatus updates the tenant's status, but only while the registry still
// holds the handle generation the caller acted on behalf of.
func (r *Registry) SetStatus(tenantID string, gen uint64, status model.ConnectionStatus, qr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tenantID]
	if !ok || e.gen != gen {
		return false
	}
	e.status = status
	e.qr = qr
	e.lastUpdate = time.Now().UTC()
	return true
}

// Holds reports whether the registry still points at the given generation.
func (r *Registry) Holds(tenantID string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tenantID]
	return ok && e.gen == gen
}

// RemoveIf deletes the entry only if its generation matches, returning the
// removed session. Guards against a stale close event tearing down a
// successor handle.
func (r *Registry) RemoveIf(tenantID string, gen uint64) (transport.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tenantID]
	if !ok || e.gen != gen {
		return nil, false
	}
	delete(r.entries, tenantID)
	return e.session, true
}

// Remove unconditionally clears the tenant's entry, returning its session.
func (r *Registry) Remove(tenantID string) (transport.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tenantID]
	if !ok {
		return nil, false
	}
	delete(r.entries, tenantID)
	return e.session, true
}

// Session returns the tenant's live session if the entry is usable: present,
// holding a handle, and connected.
func (r *Registry) Session(tenantID string) (transport.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tenantID]
	if !ok || e.session == nil || e.status != model.ConnConnected {
		return nil, false
	}
	return e.session, true
}

// IsUsable reports whether the tenant has a connected live handle.
func (r *Registry) IsUsable(tenantID string) bool {
	_, ok := r.Session(tenantID)
	return ok
}

// Get returns a snapshot of the tenant's state.
func (r *Registry) Get(tenantID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tenantID]
	if !ok {
		return Snapshot{Status: model.ConnUninitialized}, false
	}
	return Snapshot{Status: e.status, LastUpdate: e.lastUpdate, QR: e.qr}, true
}
