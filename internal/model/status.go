package model

type Status string

const (
	Pending Status = "pending"
	// Sending is a transient lease state: the scheduler claims due rows into
	// it so an overlapping sweep cannot dispatch the same message twice.
	// Externally it is reported as pending.
	Sending   Status = "sending"
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
	Failed    Status = "failed"
)

var statusRank = map[Status]int{
	Pending:   0,
	Sending:   1,
	Sent:      2,
	Delivered: 3,
	Read:      4,
}

// Advances reports whether moving from to next is a legal transition.
// Ranks only increase, failed is terminal and reachable from any
// non-delivered state, and nothing leaves failed.
func Advances(from, to Status) bool {
	if from == Failed {
		return false
	}
	if to == Failed {
		return from == Pending || from == Sending || from == Sent
	}
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// External maps internal statuses to the API-visible set. The sending
// lease state is an implementation detail and surfaces as pending.
func (s Status) External() Status {
	if s == Sending {
		return Pending
	}
	return s
}

// StatusFromCode maps the transport's numeric receipt codes onto the
// canonical statuses. Unknown codes deliberately fall back to sent rather
// than being dropped.
func StatusFromCode(code int) Status {
	switch code {
	case 1:
		return Pending
	case 3:
		return Delivered
	case 4:
		return Read
	case -1:
		return Failed
	default:
		return Sent
	}
}
