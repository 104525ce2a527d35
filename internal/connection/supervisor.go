package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AyanDgr8/wa-prod/internal/config"
	"github.com/AyanDgr8/wa-prod/internal/model"
	"github.com/AyanDgr8/wa-prod/internal/repo"
	"github.com/AyanDgr8/wa-prod/internal/transport"
)

var (
	// ErrConnectTimeout is returned when the transport reaches neither an
	// open state nor a handshake artifact within the configured ceiling.
	ErrConnectTimeout = errors.New("connection: connect timed out")
	// ErrNotConnected rejects operations that require a usable session.
	ErrNotConnected = errors.New("connection: instance not connected")
)

// ReceiptSink receives delivery receipt events read off live sessions.
type ReceiptSink interface {
	Enqueue(ev transport.ReceiptEvent)
}

// ConnectResult is the outcome of a connect attempt: either a usable session
// or a handshake artifact the user must scan out of band.
type ConnectResult struct {
	Connected bool
	QR        string
}

// Supervisor establishes and supervises per-tenant sessions.
type Supervisor struct {
	registry *Registry
	creds    repo.CredentialRepository
	tr       transport.Transport
	receipts ReceiptSink
	cfg      config.ConnectConfig

	// serializes connect attempts per tenant so two callers cannot race a
	// second handle into existence
	connectMu sync.Map // tenantID -> *sync.Mutex
}

func NewSupervisor(registry *Registry, creds repo.CredentialRepository, tr transport.Transport, receipts ReceiptSink, cfg config.ConnectConfig) *Supervisor {
	return &Supervisor{
		registry: registry,
		creds:    creds,
		tr:       tr,
		receipts: receipts,
		cfg:      cfg,
	}
}

func (s *Supervisor) tenantLock(tenantID string) *sync.Mutex {
	mu, _ := s.connectMu.LoadOrStore(tenantID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Connect brings up a session for the tenant. It returns as soon as the
// transport reports an authenticated open state or produces a pairing
// payload, and fails with ErrConnectTimeout after the configured ceiling.
func (s *Supervisor) Connect(ctx context.Context, tenantID string) (ConnectResult, error) {
	mu := s.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	if s.registry.IsUsable(tenantID) {
		return ConnectResult{Connected: true}, nil
	}

	// A stale entry must be explicitly removed before a new handle exists.
	if old, ok := s.registry.Remove(tenantID); ok && old != nil {
		_ = old.Close()
	}

	creds, err := s.creds.Load(ctx, tenantID)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("connection: load credentials: %w", err)
	}

	sess, err := s.tr.Dial(ctx, tenantID, creds)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("connection: dial: %w", err)
	}

	gen := s.registry.Create(tenantID, sess)

	first := make(chan ConnectResult, 1)
	go s.run(tenantID, sess, gen, first)

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-first:
		if res.Connected {
			// Force-flush whatever the transport handed us during the
			// handshake so a restart can resume the session.
			s.flushCredentials(tenantID)
		}
		return res, nil
	case <-timer.C:
		if old, ok := s.registry.RemoveIf(tenantID, gen); ok && old != nil {
			_ = old.Close()
		}
		return ConnectResult{}, ErrConnectTimeout
	case <-ctx.Done():
		if old, ok := s.registry.RemoveIf(tenantID, gen); ok && old != nil {
			_ = old.Close()
		}
		return ConnectResult{}, ctx.Err()
	}
}

// ConnectWithRetry is the HTTP-triggered entry point: transient connect
// failures are retried with an increasing delay, each attempt starting from
// a clean registry state.
func (s *Supervisor) ConnectWithRetry(ctx context.Context, tenantID string) (ConnectResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		res, err := s.Connect(ctx, tenantID)
		if err == nil {
			return res, nil
		}
		lastErr = err

		slog.Warn("connect attempt failed",
			"tenant", tenantID,
			"attempt", attempt,
			"error", err,
		)

		if attempt == s.cfg.RetryAttempts {
			break
		}

		select {
		case <-time.After(s.cfg.RetryBase * time.Duration(attempt)):
		case <-ctx.Done():
			return ConnectResult{}, ctx.Err()
		}
	}
	return ConnectResult{}, lastErr
}

// Reset tears down any live handle, deletes persisted credential material
// and clears the registry entry. Idempotent; teardown errors are swallowed.
func (s *Supervisor) Reset(ctx context.Context, tenantID string) error {
	mu := s.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	if sess, ok := s.registry.Remove(tenantID); ok && sess != nil {
		_ = sess.Logout(ctx)
		_ = sess.Close()
	}

	if err := s.creds.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("connection: delete credentials: %w", err)
	}

	slog.Info("tenant connection reset", "tenant", tenantID)
	return nil
}

// Status returns the tenant's registry snapshot.
func (s *Supervisor) Status(tenantID string) (Snapshot, bool) {
	return s.registry.Get(tenantID)
}

// run consumes a session's event stream until it ends. It is the only writer
// of this handle's registry status.
func (s *Supervisor) run(tenantID string, sess transport.Session, gen uint64, first chan<- ConnectResult) {
	notify := func(res ConnectResult) {
		select {
		case first <- res:
		default:
		}
	}

	for ev := range sess.Events() {
		switch e := ev.(type) {
		case transport.ReceiptEvent:
			if s.receipts != nil {
				s.receipts.Enqueue(e)
			}

		case transport.StateEvent:
			if len(e.Credentials) > 0 {
				// Credential updates are effective only once durable.
				if err := s.creds.Save(context.Background(), tenantID, e.Credentials); err != nil {
					slog.Error("failed to persist session credentials", "tenant", tenantID, "error", err)
				}
			}

			switch {
			case e.Open:
				s.registry.SetStatus(tenantID, gen, model.ConnConnected, "")
				slog.Info("tenant connected", "tenant", tenantID)
				notify(ConnectResult{Connected: true})

			case e.QR != "":
				s.registry.SetStatus(tenantID, gen, model.ConnAwaitingHandshake, e.QR)
				slog.Info("tenant awaiting handshake", "tenant", tenantID)
				notify(ConnectResult{QR: e.QR})

			case e.Closed:
				s.handleClose(tenantID, gen, e.LoggedOut)
				return
			}
		}
	}

	// Stream ended without an explicit close frame; treat it like any other
	// non-logout disconnect.
	s.handleClose(tenantID, gen, false)
}

func (s *Supervisor) handleClose(tenantID string, gen uint64, loggedOut bool) {
	if loggedOut {
		// Explicit logout is terminal: no reconnect, no stale credentials.
		if sess, ok := s.registry.RemoveIf(tenantID, gen); ok && sess != nil {
			_ = sess.Close()
		}
		if err := s.creds.Delete(context.Background(), tenantID); err != nil {
			slog.Error("failed to delete credentials after logout", "tenant", tenantID, "error", err)
		}
		slog.Info("tenant logged out", "tenant", tenantID)
		return
	}

	if !s.registry.SetStatus(tenantID, gen, model.ConnReconnecting, "") {
		// A successor handle already exists; this close is stale.
		return
	}
	slog.Warn("tenant connection lost, scheduling reconnect",
		"tenant", tenantID,
		"delay", s.cfg.ReconnectDelay,
	)

	time.AfterFunc(s.cfg.ReconnectDelay, func() {
		// Only reconnect if the registry still points at the handle that
		// failed; a superseded attempt must no-op.
		if !s.registry.Holds(tenantID, gen) {
			return
		}
		if sess, ok := s.registry.RemoveIf(tenantID, gen); ok && sess != nil {
			_ = sess.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()

		if _, err := s.Connect(ctx, tenantID); err != nil {
			slog.Error("reconnect failed", "tenant", tenantID, "error", err)
		}
	})
}

// flushCredentials re-persists the latest loaded blob after a successful
// connect. Best effort: the event-driven save path is authoritative.
func (s *Supervisor) flushCredentials(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	blob, err := s.creds.Load(ctx, tenantID)
	if err != nil || blob == nil {
		return
	}
	if err := s.creds.Save(ctx, tenantID, blob); err != nil {
		slog.Error("failed to flush credentials", "tenant", tenantID, "error", err)
	}
}
