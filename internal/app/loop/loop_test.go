package loop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_CallRunsInOrder(t *testing.T) {
	l := New()
	go l.Run()
	defer l.Stop()

	var order []int
	for i := range 5 {
		l.Post(func() { order = append(order, i) })
	}

	var snapshot []int
	require.NoError(t, l.Call(func() { snapshot = append(snapshot, order...) }))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, snapshot)
}

func TestLoop_RecoversFromPanic(t *testing.T) {
	l := New()
	go l.Run()
	defer l.Stop()

	l.Post(func() { panic("boom") })

	ran := false
	require.NoError(t, l.Call(func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_AfterFuncPostsBack(t *testing.T) {
	l := New()
	go l.Run()
	defer l.Stop()

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestLoop_CallAfterStop(t *testing.T) {
	l := New()
	go l.Run()

	var n atomic.Int32
	l.Go(func() { n.Add(1) })
	l.Stop()

	assert.ErrorIs(t, l.Call(func() {}), ErrStopped)
	assert.Equal(t, int32(1), n.Load())
}

func TestManual_AdvanceFiresTimersInOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var fired []string
	m.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	m.AfterFunc(time.Second, func() {
		fired = append(fired, "a")
		m.Post(func() { fired = append(fired, "a-post") })
	})
	stopped := m.AfterFunc(1500*time.Millisecond, func() { fired = append(fired, "never") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	m.Advance(1999 * time.Millisecond)
	assert.Equal(t, []string{"a", "a-post"}, fired)

	m.Advance(time.Millisecond)
	assert.Equal(t, []string{"a", "a-post", "b"}, fired)
	assert.Equal(t, time.Unix(2, 0), m.Now())
}

func TestManual_GoRunsInlinePostWaitsForDrain(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var steps []string
	m.Go(func() {
		steps = append(steps, "go")
		m.Post(func() { steps = append(steps, "continuation") })
	})
	assert.Equal(t, []string{"go"}, steps)
	assert.Equal(t, 1, m.Pending())

	m.Drain()
	assert.Equal(t, []string{"go", "continuation"}, steps)
}
