package model

import "time"

type Message struct {
	ID                 int64
	TenantID           string
	Recipient          string
	Content            string
	MediaURL           *string
	Caption            *string
	ScheduledAt        *time.Time
	BatchID            *string
	Status             Status
	TransportMessageID *string
	AttemptCount       int
	LastError          *string
	SentAt             *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasMedia reports whether the message carries a media payload
// in addition to (or instead of) plain text.
func (m Message) HasMedia() bool {
	return m.MediaURL != nil && *m.MediaURL != ""
}
