package market

import (
	"time"

	"hve/internal/domain"
)

// LatestCompleteTradingDay returns the most recent calendar date whose
// session has fully ended as of now. Today counts once the effective close
// has passed; otherwise the scan walks back over weekends. Past holidays are
// not subtracted: treating a holiday as a candidate day only means one extra
// reconciliation pass that finds no bars, which is harmless, whereas
// skipping a real session would mask staleness.
func LatestCompleteTradingDay(now time.Time, st Status) time.Time {
	now = now.In(Central())
	day := domain.DateOf(now, Central())

	if !st.OpenToday || now.Before(st.Close) {
		day = day.AddDate(0, 0, -1)
	}
	for !isWeekday(day) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// InSession reports whether realtime monitoring may run at now: the market
// trades today and the effective close has not passed. Weekends and full
// holidays arrive here as OpenToday=false.
func InSession(now time.Time, st Status) bool {
	if !st.OpenToday {
		return false
	}
	return now.In(Central()).Before(st.Close)
}
