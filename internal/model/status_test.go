package model

import "testing"

func TestStatusFromCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		want Status
	}{
		{1, Pending},
		{3, Delivered},
		{4, Read},
		{-1, Failed},
		{0, Sent},
		{2, Sent},
		{99, Sent},
	}

	for _, tc := range cases {
		if got := StatusFromCode(tc.code); got != tc.want {
			t.Fatalf("StatusFromCode(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestAdvances_Monotonic(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to Status }{
		{Pending, Sending},
		{Pending, Sent},
		{Sending, Sent},
		{Sent, Delivered},
		{Delivered, Read},
		{Pending, Failed},
		{Sending, Failed},
		{Sent, Failed},
	}
	for _, tc := range allowed {
		if !Advances(tc.from, tc.to) {
			t.Fatalf("expected %q -> %q to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{Sent, Pending},
		{Delivered, Sent},
		{Read, Delivered},
		{Failed, Pending},
		{Failed, Sent},
		{Failed, Failed},
		{Delivered, Failed},
		{Read, Failed},
		{Sent, Sent},
	}
	for _, tc := range denied {
		if Advances(tc.from, tc.to) {
			t.Fatalf("expected %q -> %q to be denied", tc.from, tc.to)
		}
	}
}

func TestStatusExternal(t *testing.T) {
	t.Parallel()

	if got := Sending.External(); got != Pending {
		t.Fatalf("expected sending to surface as pending, got %q", got)
	}
	for _, s := range []Status{Pending, Sent, Delivered, Read, Failed} {
		if got := s.External(); got != s {
			t.Fatalf("expected %q to surface unchanged, got %q", s, got)
		}
	}
}

func TestTimelineColumn(t *testing.T) {
	t.Parallel()

	cases := map[Status]string{
		Pending:   "initiated_time",
		Sent:      "sent_time",
		Delivered: "delivered_time",
		Read:      "read_time",
		Failed:    "failed_time",
		Sending:   "",
	}
	for s, want := range cases {
		if got := TimelineColumn(s); got != want {
			t.Fatalf("TimelineColumn(%q) = %q, want %q", s, got, want)
		}
	}
}
