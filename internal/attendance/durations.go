package attendance

import "github.com/nsvirk/attendanceapi/internal/clock"

// ComputeDurations returns billed online and back-soon seconds.
//
//	backSoon = sum of closed back-soon durations
//	online   = max(0, floor((lastActivity - checkIn)/1000) - backSoon)
//
// Open records contribute nothing; Close ends them before calling this.
func ComputeDurations(checkIn, lastActivity clock.Timestamp, events []BackSoonEvent) (online, backSoon int64) {
	for _, e := range events {
		backSoon += e.seconds()
	}
	online = lastActivity.WholeSecondsSince(checkIn) - backSoon
	if online < 0 {
		online = 0
	}
	return online, backSoon
}
