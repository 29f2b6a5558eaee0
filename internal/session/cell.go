// Package session keeps an authenticated session alive on the consumer
// side: it holds the access token in memory only, persists the refresh
// token, renews proactively before expiry, and coalesces every renewal
// attempt into a single flight.
package session

import "sync"

// Cell is the in-memory home of the access token. It is deliberately not
// persisted anywhere and has exactly one writer, the Manager; everything
// else (the transport, mostly) only reads it.
type Cell struct {
	mu  sync.RWMutex
	tok string
}

func (c *Cell) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tok
}

func (c *Cell) set(tok string) {
	c.mu.Lock()
	c.tok = tok
	c.mu.Unlock()
}
