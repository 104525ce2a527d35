// Package gateway implements the transport contract against the WhatsApp
// gateway sidecar: session management and sends go over its HTTP API, state
// and receipt events arrive on a per-session websocket stream.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AyanDgr8/wa-prod/internal/transport"
)

type Client struct {
	baseURL string
	client  *http.Client
	dialer  *websocket.Dialer
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}
}

var _ transport.Transport = (*Client)(nil)

type dialRequest struct {
	Credentials []byte `json:"credentials,omitempty"`
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text,omitempty"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// eventFrame is the wire shape of one websocket event.
type eventFrame struct {
	Type        string `json:"type"` // "state" or "receipt"
	Open        bool   `json:"open"`
	QR          string `json:"qr"`
	Closed      bool   `json:"closed"`
	LoggedOut   bool   `json:"loggedOut"`
	Credentials []byte `json:"credentials"`
	MessageID   string `json:"messageId"`
	Code        int    `json:"code"`
}

func (c *Client) Dial(ctx context.Context, tenantID string, creds []byte) (transport.Session, error) {
	reqBody, err := json.Marshal(dialRequest{Credentials: creds})
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/sessions/%s", c.baseURL, url.PathEscape(tenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway: dial failed: status=%d body=%q", resp.StatusCode, string(body))
	}

	wsURL, err := eventsURL(c.baseURL, tenantID)
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: event stream dial failed: %w", err)
	}

	s := &session{
		tenantID: tenantID,
		baseURL:  c.baseURL,
		client:   c.client,
		conn:     conn,
		events:   make(chan transport.Event, 32),
	}
	go s.readPump()

	return s, nil
}

// eventsURL rewrites the gateway base URL into the websocket endpoint for a
// tenant's event stream.
func eventsURL(base, tenantID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("gateway: invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	// u.String() escapes the path, so the tenant id goes in raw.
	u.Path = fmt.Sprintf("%s/sessions/%s/events", u.Path, tenantID)
	return u.String(), nil
}

type session struct {
	tenantID string
	baseURL  string
	client   *http.Client
	conn     *websocket.Conn
	events   chan transport.Event

	once sync.Once
}

var _ transport.Session = (*session)(nil)

func (s *session) Send(ctx context.Context, recipient string, content transport.Content) (string, error) {
	reqBody, err := json.Marshal(sendRequest{
		Recipient: recipient,
		Text:      content.Text,
		MediaURL:  content.MediaURL,
		Caption:   content.Caption,
	})
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/sessions/%s/messages", s.baseURL, url.PathEscape(s.tenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", transport.ErrSendTimeout
		}
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout {
		return "", transport.ErrSendTimeout
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("gateway: unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("gateway: failed to decode json: %w body=%q", err, string(body))
	}
	if sr.MessageID == "" {
		return "", fmt.Errorf("gateway: missing messageId in response body=%q", string(body))
	}

	return sr.MessageID, nil
}

func (s *session) Events() <-chan transport.Event {
	return s.events
}

func (s *session) Logout(ctx context.Context) error {
	u := fmt.Sprintf("%s/sessions/%s/logout", s.baseURL, url.PathEscape(s.tenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway: logout failed: status=%d body=%q", resp.StatusCode, string(body))
	}
	return nil
}

func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// readPump decodes websocket frames into transport events until the stream
// ends. A broken stream surfaces as a non-logout close event so the
// supervisor treats it like any other disconnect.
func (s *session) readPump() {
	defer close(s.events)

	for {
		var frame eventFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				slog.Debug("gateway event stream ended", "tenant", s.tenantID, "error", err)
			}
			s.events <- transport.StateEvent{Closed: true}
			return
		}

		switch frame.Type {
		case "receipt":
			s.events <- transport.ReceiptEvent{
				TenantID:           s.tenantID,
				TransportMessageID: frame.MessageID,
				Code:               frame.Code,
			}
		case "state":
			s.events <- transport.StateEvent{
				Open:        frame.Open,
				QR:          frame.QR,
				Closed:      frame.Closed,
				LoggedOut:   frame.LoggedOut,
				Credentials: frame.Credentials,
			}
			if frame.Closed {
				return
			}
		default:
			slog.Debug("gateway sent unknown event type", "tenant", s.tenantID, "type", frame.Type)
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
