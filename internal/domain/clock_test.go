package domain

import (
	"testing"
	"time"
)

func TestDayKey(t *testing.T) {
	got := DayKey(time.Date(2026, 10, 14, 23, 59, 0, 0, time.UTC))
	if got != "Wed Oct 14 2026" {
		t.Errorf("DayKey() = %q, want %q", got, "Wed Oct 14 2026")
	}
}

func TestWeekKey(t *testing.T) {
	tests := []struct {
		day  time.Time
		want string
	}{
		{time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC), "2026-W3"}, // Wednesday
		{time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC), "2026-W3"}, // Saturday closes the week
		{time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC), "2026-W4"}, // Sunday opens the next
		{time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC), "2026-W1"},
	}
	for _, tt := range tests {
		if got := WeekKey(tt.day); got != tt.want {
			t.Errorf("WeekKey(%s) = %q, want %q", tt.day.Format("Mon Jan 2"), got, tt.want)
		}
	}
}

func TestSystemClock_Location(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	if got := (SystemClock{Location: loc}).Now().Location(); got != loc {
		t.Errorf("location = %v, want %v", got, loc)
	}
}

func TestSessions(t *testing.T) {
	g := GuestSession("abc")
	if g.Key != "guest:abc" || g.Authenticated() {
		t.Errorf("GuestSession = %+v", g)
	}
	u := UserSession("u1")
	if u.Key != "user:u1" || !u.Authenticated() {
		t.Errorf("UserSession = %+v", u)
	}
}
