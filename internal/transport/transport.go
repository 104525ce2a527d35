// Package transport defines the contract between the delivery core and the
// underlying chat-network connection. The wire protocol itself is opaque:
// implementations only need to dial sessions, send content and surface the
// network's event stream.
package transport

import (
	"context"
	"errors"
)

// ErrSendTimeout marks a transient transport-level timeout. Sends failing
// with it are retried by the pipeline; any other error is final.
var ErrSendTimeout = errors.New("transport: send timed out")

// Content is one outbound payload. Text-only when MediaURL is empty.
type Content struct {
	Text     string
	MediaURL string
	Caption  string
}

// Event is either a StateEvent or a ReceiptEvent.
type Event interface {
	isEvent()
}

// StateEvent reports a change in the session's connection state.
type StateEvent struct {
	// Open is true once the session is authenticated and usable.
	Open bool
	// QR carries the pairing payload while the session waits for an
	// out-of-band handshake. Empty otherwise.
	QR string
	// Closed is set when the session ended. LoggedOut distinguishes an
	// explicit logout (terminal) from every other close reason.
	Closed    bool
	LoggedOut bool
	// Credentials carries an updated opaque credential blob that must be
	// persisted before the event counts as handled.
	Credentials []byte
}

func (StateEvent) isEvent() {}

// ReceiptEvent reports a delivery status update for a previously sent message.
type ReceiptEvent struct {
	TenantID           string
	TransportMessageID string
	Code               int
}

func (ReceiptEvent) isEvent() {}

// Session is one live tenant connection.
type Session interface {
	// Send delivers content to a recipient and returns the transport-level
	// message id. Timeouts are reported as ErrSendTimeout.
	Send(ctx context.Context, recipient string, c Content) (string, error)
	// Events exposes the session's state and receipt stream. The channel is
	// closed when the session ends.
	Events() <-chan Event
	Logout(ctx context.Context) error
	Close() error
}

// Transport dials sessions. creds is the previously persisted credential
// blob, or nil for a fresh pairing.
type Transport interface {
	Dial(ctx context.Context, tenantID string, creds []byte) (Session, error)
}
