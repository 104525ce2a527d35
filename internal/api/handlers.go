package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/AyanDgr8/wa-prod/internal/cache"
	"github.com/AyanDgr8/wa-prod/internal/connection"
	"github.com/AyanDgr8/wa-prod/internal/model"
	"github.com/AyanDgr8/wa-prod/internal/quota"
	"github.com/AyanDgr8/wa-prod/internal/repo"
	"github.com/AyanDgr8/wa-prod/internal/scheduler"
)

// ConnectionManager is the slice of the supervisor the API needs.
type ConnectionManager interface {
	ConnectWithRetry(ctx context.Context, tenantID string) (connection.ConnectResult, error)
	Reset(ctx context.Context, tenantID string) error
	Status(tenantID string) (connection.Snapshot, bool)
}

// BatchSender delivers a batch for one tenant right away.
type BatchSender interface {
	SendBatch(ctx context.Context, tenantID string, msgs []model.Message) (int, error)
}

type Handler struct {
	sched    *scheduler.Scheduler
	repo     repo.MessageRepository
	conns    ConnectionManager
	sender   BatchSender
	statuses cache.StatusStore
	qrPixels int
}

// NewHandler wires the API surface. statuses is the optional status mirror;
// nil means every status read goes to the ledger.
func NewHandler(s *scheduler.Scheduler, r repo.MessageRepository, conns ConnectionManager, sender BatchSender, statuses cache.StatusStore) *Handler {
	return &Handler{
		sched:    s,
		repo:     r,
		conns:    conns,
		sender:   sender,
		statuses: statuses,
		qrPixels: 256,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running":  h.sched.IsRunning(),
		"interval": h.sched.Interval().String(),
	})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	// The tick loop must outlive this request, so the request's deadline and
	// cancellation are stripped off the context it runs under.
	h.sched.Start(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

type sendMessageItem struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
}

type sendMediaRequest struct {
	Messages   []sendMessageItem `json:"messages"`
	MediaURL   string            `json:"mediaUrl"`
	ScheduleAt *time.Time        `json:"scheduleAt"`
}

// SendMedia accepts a batch for one tenant. Without scheduleAt the batch is
// delivered on the request path; with it the messages are persisted and the
// scheduler picks them up when due.
func (h *Handler) SendMedia(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")

	var req sendMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	batch := make([]model.Message, 0, len(req.Messages))
	for i, item := range req.Messages {
		recipient, err := normalizeRecipient(item.Recipient)
		if err != nil {
			writeError(w, http.StatusBadRequest, "messages["+strconv.Itoa(i)+"]: "+err.Error())
			return
		}
		if item.Text == "" && req.MediaURL == "" {
			writeError(w, http.StatusBadRequest, "messages["+strconv.Itoa(i)+"]: text or mediaUrl required")
			return
		}

		m := model.Message{
			TenantID:  tenantID,
			Recipient: recipient,
			Content:   item.Text,
		}
		if req.MediaURL != "" {
			mediaURL := req.MediaURL
			m.MediaURL = &mediaURL
			if item.Caption != "" {
				caption := item.Caption
				m.Caption = &caption
			}
		}
		batch = append(batch, m)
	}

	if req.ScheduleAt != nil {
		at := req.ScheduleAt.UTC()
		batchID := uuid.NewString()
		for i := range batch {
			batch[i].ScheduledAt = &at
			batch[i].BatchID = &batchID
		}
		if err := h.repo.CreateBatch(r.Context(), batch); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to persist scheduled messages")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"success":   true,
			"scheduled": len(batch),
			"batchId":   batchID,
		})
		return
	}

	sent, err := h.sender.SendBatch(r.Context(), tenantID, batch)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrNoSubscription):
			writeError(w, http.StatusForbidden, "no active subscription")
		case errors.Is(err, quota.ErrQuotaExceeded):
			writeError(w, http.StatusTooManyRequests, "message quota exceeded")
		case errors.Is(err, connection.ErrNotConnected):
			writeError(w, http.StatusConflict, "tenant is not connected")
		default:
			writeError(w, http.StatusInternalServerError, "failed to send batch")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"totalMessages": sent,
	})
}

// QRCode reports pairing state. A connected tenant short-circuits; otherwise
// a connect attempt is made and any pairing payload comes back as a PNG
// data URL for the client to render.
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")

	if snap, ok := h.conns.Status(tenantID); ok && snap.Status == model.ConnConnected {
		writeJSON(w, http.StatusOK, map[string]any{"isAuthenticated": true})
		return
	}

	res, err := h.conns.ConnectWithRetry(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to reach the messaging gateway")
		return
	}
	if res.Connected {
		writeJSON(w, http.StatusOK, map[string]any{"isAuthenticated": true})
		return
	}
	if res.QR == "" {
		writeError(w, http.StatusBadGateway, "no pairing code available")
		return
	}

	png, err := qrcode.Encode(res.QR, qrcode.Medium, h.qrPixels)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render pairing code")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"isAuthenticated": false,
		"qrCode":          "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

func (h *Handler) ConnectionStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")

	snap, ok := h.conns.Status(tenantID)
	if !ok {
		snap = connection.Snapshot{Status: model.ConnUninitialized}
	}

	body := map[string]any{
		"connected": snap.Status == model.ConnConnected,
		"status":    string(snap.Status),
		"message":   statusMessage(snap.Status),
	}
	if !snap.LastUpdate.IsZero() {
		body["lastUpdate"] = snap.LastUpdate.UTC()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")

	if err := h.conns.Reset(r.Context(), tenantID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset connection")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	status, ok := parseStatusFilter(r.URL.Query().Get("status"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	items, err := h.repo.ListByTenant(r.Context(), tenantID, status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// MessageStatus reports one message's delivery state. The mirror answers
// first; a miss (or no mirror) falls back to the ledger.
func (h *Handler) MessageStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	if h.statuses != nil {
		entry, err := h.statuses.Lookup(r.Context(), tenantID, id)
		if err == nil && entry != nil {
			body := map[string]any{
				"id":        id,
				"status":    string(entry.Status),
				"updatedAt": entry.UpdatedAt,
			}
			if entry.TransportMessageID != "" {
				body["transportMessageId"] = entry.TransportMessageID
			}
			writeJSON(w, http.StatusOK, body)
			return
		}
		if err != nil {
			slog.Warn("status mirror lookup failed, falling back to ledger",
				"tenant", tenantID, "message_id", id, "error", err)
		}
	}

	m, err := h.repo.FindByID(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to look up message")
		return
	}

	body := map[string]any{
		"id":        m.ID,
		"status":    string(m.Status.External()),
		"updatedAt": m.UpdatedAt,
	}
	if m.TransportMessageID != nil {
		body["transportMessageId"] = *m.TransportMessageID
	}
	writeJSON(w, http.StatusOK, body)
}

func statusMessage(s model.ConnectionStatus) string {
	switch s {
	case model.ConnConnected:
		return "connected"
	case model.ConnAwaitingHandshake:
		return "waiting for QR scan"
	case model.ConnReconnecting:
		return "reconnecting"
	case model.ConnDisconnected:
		return "disconnected"
	case model.ConnError:
		return "connection error"
	default:
		return "not initialized"
	}
}

// parseStatusFilter accepts the public status names; the transient sending
// lease is internal and not filterable.
func parseStatusFilter(raw string) (model.Status, bool) {
	if raw == "" {
		return "", true
	}
	s := model.Status(raw)
	switch s {
	case model.Pending, model.Sent, model.Delivered, model.Read, model.Failed:
		return s, true
	}
	return "", false
}

func normalizeRecipient(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", errors.New("recipient must not be empty")
	}

	digits := cleaned
	if strings.HasPrefix(cleaned, "+") {
		digits = cleaned[1:]
	}
	if digits == "" {
		return "", errors.New("recipient must contain digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", errors.New("recipient must be a phone number")
		}
	}
	return cleaned, nil
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
