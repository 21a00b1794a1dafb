package sfu

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoServers is returned when no SFU is configured.
var ErrNoServers = errors.New("no sfu servers configured")

// Pool is a set of SFU servers. Each room is hosted on the server with the fewest
// rooms at the time it is first needed.
type Pool struct {
	clients []Client

	// load counts rooms mapped onto each server.
	load []int

	mu sync.Mutex
}

// NewPool creates a pool over clients.
func NewPool(clients ...Client) *Pool {
	return &Pool{clients: clients, load: make([]int, len(clients))}
}

// Dial connects to every url. Already opened connections are closed on failure.
func Dial(ctx context.Context, urls []string) (*Pool, error) {
	clients := make([]Client, 0, len(urls))
	for _, url := range urls {
		j, err := DialJanus(ctx, url)
		if err != nil {
			for _, c := range clients {
				c.(*Janus).Close()
			}
			return nil, fmt.Errorf("dial sfu %s: %w", url, err)
		}
		clients = append(clients, j)
	}
	return NewPool(clients...), nil
}

// Len returns the number of servers.
func (p *Pool) Len() int {
	return len(p.clients)
}

// Acquire picks the least-loaded server and counts one more room on it.
func (p *Pool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.clients) == 0 {
		return 0, ErrNoServers
	}

	best := 0
	for i := range p.load {
		if p.load[i] < p.load[best] {
			best = i
		}
	}
	p.load[best]++
	return best, nil
}

// Release gives back one room on server i.
func (p *Pool) Release(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i >= 0 && i < len(p.load) && p.load[i] > 0 {
		p.load[i]--
	}
}

// Client returns server i.
func (p *Pool) Client(i int) Client {
	return p.clients[i]
}

// OnHangup registers fn on every server. fn receives the server index.
func (p *Pool) OnHangup(fn func(server int, handle uint64)) {
	for i, c := range p.clients {
		c.OnHangup(func(handle uint64) { fn(i, handle) })
	}
}

// Close closes every Janus connection in the pool.
func (p *Pool) Close() {
	for _, c := range p.clients {
		if j, ok := c.(*Janus); ok {
			j.Close()
		}
	}
}
