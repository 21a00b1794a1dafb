// Package broadcasttest provides a recording connection for tests.
package broadcasttest

import (
	"gridroom/internal/app/protocol"
)

// Conn records everything sent to it.
type Conn struct {
	Events     []protocol.Outbound
	KickCode   int
	KickReason string
}

// Send implements broadcast.Conn.
func (c *Conn) Send(ev protocol.Outbound) {
	c.Events = append(c.Events, ev)
}

// Kick implements broadcast.Conn.
func (c *Conn) Kick(code int, reason string) {
	c.KickCode = code
	c.KickReason = reason
}

// Reset forgets recorded events.
func (c *Conn) Reset() {
	c.Events = nil
}

// Types lists the envelope types received, in order.
func (c *Conn) Types() []string {
	out := make([]string, len(c.Events))
	for i, ev := range c.Events {
		out[i] = ev.Type()
	}
	return out
}

// Of returns every recorded event of type T.
func Of[T protocol.Outbound](c *Conn) []T {
	var out []T
	for _, ev := range c.Events {
		if t, ok := ev.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// Last returns the most recent event of type T.
func Last[T protocol.Outbound](c *Conn) (T, bool) {
	all := Of[T](c)
	if len(all) == 0 {
		var zero T
		return zero, false
	}
	return all[len(all)-1], true
}
