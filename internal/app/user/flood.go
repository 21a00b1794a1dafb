package user

import "time"

// floodRing keeps the timestamps of the most recent messages.
type floodRing struct {
	stamps []time.Time
	next   int
}

// AllowMessage records a message sent at now unless limit messages were already sent
// within window.
func (u *User) AllowMessage(now time.Time, limit int, window time.Duration) bool {
	if limit <= 0 {
		return true
	}

	r := &u.recent
	if len(r.stamps) != limit {
		r.stamps = make([]time.Time, limit)
		r.next = 0
	}

	oldest := r.stamps[r.next]
	if !oldest.IsZero() && now.Sub(oldest) < window {
		return false
	}

	r.stamps[r.next] = now
	r.next = (r.next + 1) % limit
	return true
}
