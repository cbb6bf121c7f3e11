package market

import (
	"testing"
	"time"
)

func centralTime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, Central())
}

func dateUTC(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestLatestCompleteTradingDayAfterClose(t *testing.T) {
	// Wednesday 2025-09-17, 16:30 Central, regular close 15:00: today is done.
	now := centralTime(2025, 9, 17, 16, 30)
	st := Status{OpenToday: true, Close: centralTime(2025, 9, 17, 15, 0)}

	got := LatestCompleteTradingDay(now, st)
	if !got.Equal(dateUTC(2025, 9, 17)) {
		t.Errorf("LatestCompleteTradingDay = %v, want 2025-09-17", got)
	}
}

func TestLatestCompleteTradingDayMidSession(t *testing.T) {
	// Wednesday mid-session: yesterday is the last complete day.
	now := centralTime(2025, 9, 17, 10, 0)
	st := Status{OpenToday: true, Close: centralTime(2025, 9, 17, 15, 0)}

	got := LatestCompleteTradingDay(now, st)
	if !got.Equal(dateUTC(2025, 9, 16)) {
		t.Errorf("LatestCompleteTradingDay = %v, want 2025-09-16", got)
	}
}

func TestLatestCompleteTradingDaySkipsWeekend(t *testing.T) {
	// Sunday: walk back to Friday.
	now := centralTime(2025, 9, 21, 12, 0)
	st := Status{OpenToday: false}

	got := LatestCompleteTradingDay(now, st)
	if !got.Equal(dateUTC(2025, 9, 19)) {
		t.Errorf("LatestCompleteTradingDay = %v, want Friday 2025-09-19", got)
	}

	// Monday pre-open: also Friday.
	now = centralTime(2025, 9, 22, 7, 0)
	st = Status{OpenToday: true, Close: centralTime(2025, 9, 22, 15, 0)}
	got = LatestCompleteTradingDay(now, st)
	if !got.Equal(dateUTC(2025, 9, 19)) {
		t.Errorf("LatestCompleteTradingDay Monday pre-open = %v, want 2025-09-19", got)
	}
}

func TestInSession(t *testing.T) {
	open := Status{OpenToday: true, Close: centralTime(2025, 9, 17, 15, 0)}

	if !InSession(centralTime(2025, 9, 17, 10, 0), open) {
		t.Error("mid-session should allow monitoring")
	}
	if InSession(centralTime(2025, 9, 17, 15, 30), open) {
		t.Error("past close should not allow monitoring")
	}
	if InSession(centralTime(2025, 9, 20, 10, 0), Status{OpenToday: false}) {
		t.Error("closed day should not allow monitoring")
	}

	// Early close at 12:00 Central.
	early := Status{OpenToday: true, Close: centralTime(2025, 11, 28, 12, 0)}
	if InSession(centralTime(2025, 11, 28, 13, 0), early) {
		t.Error("past an early close should not allow monitoring")
	}
	if !InSession(centralTime(2025, 11, 28, 11, 0), early) {
		t.Error("before an early close should allow monitoring")
	}
}
