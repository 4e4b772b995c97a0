package realtime

import "time"

// BackoffSchedule is a finite reconnect delay policy. Attempt 0 is the first
// reconnect attempt after a drop.
type BackoffSchedule []time.Duration

// DefaultBackoffSchedule retries immediately, then with growing fixed delays.
// After the last entry the client gives up and stays disconnected.
var DefaultBackoffSchedule = BackoffSchedule{
	0,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Delay returns the wait before the given attempt. ok is false once the
// schedule is exhausted.
func (s BackoffSchedule) Delay(attempt int) (time.Duration, bool) {
	if attempt < 0 || attempt >= len(s) {
		return 0, false
	}
	return s[attempt], true
}

// Attempts returns how many reconnect attempts the schedule allows.
func (s BackoffSchedule) Attempts() int {
	return len(s)
}
