package model

import "time"

// TimelineRecord holds the first-occurrence timestamp of each delivery state
// for one transport message. Every field is write-once: the first transition
// into a state wins and later events must not overwrite it.
type TimelineRecord struct {
	ID                 int64
	TenantID           string
	Recipient          string
	TransportMessageID string
	InitiatedTime      *time.Time
	SentTime           *time.Time
	DeliveredTime      *time.Time
	ReadTime           *time.Time
	FailedTime         *time.Time
}

// TimelineColumn returns the timeline column name a status maps to, or ""
// for statuses that leave no timeline mark (the sending lease state).
func TimelineColumn(s Status) string {
	switch s {
	case Pending:
		return "initiated_time"
	case Sent:
		return "sent_time"
	case Delivered:
		return "delivered_time"
	case Read:
		return "read_time"
	case Failed:
		return "failed_time"
	default:
		return ""
	}
}
