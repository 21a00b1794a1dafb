/*
Package loop provides the single logical thread that owns all world state.

Every mutation of rooms, users, slots and games runs as a task on one Loop goroutine.
HTTP handlers and websocket read pumps Post or Call into it; SFU calls, persistence and
timers run elsewhere and Post their continuations back. Manual is a deterministic
stand-in used by tests.
*/
package loop

import (
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gridroom/internal/pkg/logx"
)

const taskQueueBuffer = 4096

// ErrStopped is returned by Call once the loop has been stopped.
var ErrStopped = errors.New("loop stopped")

// Timer is the cancellable handle returned by AfterFunc.
type Timer interface {
	// Stop prevents the callback from being scheduled. It reports false when the timer had already fired.
	Stop() bool
}

// Scheduler is the view of the event thread that components depend on.
type Scheduler interface {
	// Now returns the scheduler's notion of the current time.
	Now() time.Time

	// Post queues fn to run on the event thread. Safe from any goroutine.
	Post(fn func())

	// Call runs fn on the event thread and waits for it to finish.
	Call(fn func()) error

	// AfterFunc runs fn on the event thread once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer

	// Go runs fn off the event thread. fn must Post any state change back.
	Go(fn func())
}

// Loop is the production Scheduler: a goroutine draining a task channel.
type Loop struct {
	// tasks is the queue of pending work.
	tasks chan func()

	// stopChan is closed by Stop.
	stopChan chan struct{}

	// done is closed once Run returns.
	done chan struct{}

	// wg tracks goroutines started with Go.
	wg sync.WaitGroup

	stopOnce sync.Once

	logger zerolog.Logger
}

// New creates a Loop. Run must be called to start processing.
func New() *Loop {
	return &Loop{
		tasks:    make(chan func(), taskQueueBuffer),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logx.For("Loop"),
	}
}

// Run processes tasks until Stop is called. Tasks still queued at that point are dropped.
func (l *Loop) Run() {
	defer close(l.done)

	l.logger.Info().Msg("Event loop started.")

	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		case <-l.stopChan:
			l.logger.Info().Int("dropped_tasks", len(l.tasks)).Msg("Event loop stopped.")
			return
		}
	}
}

// exec runs one task, recovering from panics so one bad handler cannot take the world down.
func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic in event handler.")
		}
	}()

	fn()
}

// Stop terminates Run and waits for it to return. Background goroutines started with Go
// are waited for as well.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	<-l.done
	l.wg.Wait()
}

// Now implements Scheduler.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post implements Scheduler. It blocks while the queue is full and drops the task once
// the loop has stopped. It must not be called from the loop goroutine itself.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.stopChan:
	}
}

// Call implements Scheduler.
func (l *Loop) Call(fn func()) error {
	finished := make(chan struct{})

	select {
	case l.tasks <- func() {
		defer close(finished)
		fn()
	}:
	case <-l.stopChan:
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// AfterFunc implements Scheduler.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Go implements Scheduler.
func (l *Loop) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("Recovered from panic in background task.")
			}
		}()
		fn()
	}()
}
