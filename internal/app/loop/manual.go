package loop

import (
	"sort"
	"time"
)

// Manual is a single-goroutine Scheduler with a fake clock. Go runs inline, Post queues,
// and nothing executes until Drain or Advance is called.
type Manual struct {
	now    time.Time
	queue  []func()
	timers []*manualTimer
	seq    int
}

type manualTimer struct {
	owner   *Manual
	due     time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewManual returns a Manual whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	return m.now
}

// Post implements Scheduler.
func (m *Manual) Post(fn func()) {
	m.queue = append(m.queue, fn)
}

// Call implements Scheduler. The caller is already on the event thread, so fn runs
// immediately, followed by anything it queued.
func (m *Manual) Call(fn func()) error {
	fn()
	m.Drain()
	return nil
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.seq++
	t := &manualTimer{owner: m, due: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Go implements Scheduler.
func (m *Manual) Go(fn func()) {
	fn()
}

// Drain runs queued tasks, including tasks they queue, until the queue is empty.
func (m *Manual) Drain() {
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
	}
}

// Pending reports the number of queued tasks.
func (m *Manual) Pending() int {
	return len(m.queue)
}

// Advance moves the clock forward by d, firing due timers in deadline order and draining
// after each one.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	m.Drain()

	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.due
		next.fired = true
		next.fn()
		m.Drain()
	}

	m.now = target
	m.compact()
}

func (m *Manual) nextDue(limit time.Time) *manualTimer {
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired && !t.due.After(limit) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].seq < due[j].seq
		}
		return due[i].due.Before(due[j].due)
	})
	return due[0]
}

func (m *Manual) compact() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
}
