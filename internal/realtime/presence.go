package realtime

import (
	"sync"

	"github.com/kaanagar1/equimarket-sub000/internal/metrics"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

// Presence tracks the open connections of each user in this process.
// A user is online while at least one connection is registered.
type Presence struct {
	mu    sync.RWMutex
	conns map[utils.SixID]map[*Client]struct{}
	total int
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{conns: make(map[utils.SixID]map[*Client]struct{})}
}

// Register adds c and reports whether it is the user's first connection.
func (p *Presence) Register(c *Client) (first bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		p.conns[c.UserID] = set
	}
	if _, dup := set[c]; dup {
		return false
	}
	set[c] = struct{}{}
	p.total++
	p.observe()
	return len(set) == 1
}

// Unregister removes c and reports whether it was the user's last connection.
// Unregistering an unknown connection is a no-op.
func (p *Presence) Unregister(c *Client) (last bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[c.UserID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	p.total--
	if len(set) == 0 {
		delete(p.conns, c.UserID)
		last = true
	}
	p.observe()
	return last
}

// IsOnline reports whether the user has an open connection.
func (p *Presence) IsOnline(userID utils.SixID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns[userID]) > 0
}

// OnlineCount returns the number of distinct online users.
func (p *Presence) OnlineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// Connections returns a snapshot of the user's connections.
func (p *Presence) Connections(userID utils.SixID) []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Client, 0, len(p.conns[userID]))
	for c := range p.conns[userID] {
		out = append(out, c)
	}
	return out
}

// observe must be called with mu held.
func (p *Presence) observe() {
	metrics.RealtimeConnections.Set(float64(p.total))
	metrics.RealtimeOnlineUsers.Set(float64(len(p.conns)))
}
