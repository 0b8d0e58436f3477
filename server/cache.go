// ABOUTME: Bounded FIFO cache of recent query responses keyed by query ID.
// ABOUTME: Backs the query-detail endpoint and the recent-queries view.
package server

import (
	"sync"

	"github.com/2389-research/sqlscout/pipeline"
)

// responseCache keeps the most recent query responses. When full, the oldest
// entry is evicted.
type responseCache struct {
	mu    sync.Mutex
	max   int
	order []string
	byID  map[string]*pipeline.Response
}

func newResponseCache(max int) *responseCache {
	if max <= 0 {
		max = 100
	}
	return &responseCache{
		max:  max,
		byID: make(map[string]*pipeline.Response),
	}
}

func (c *responseCache) Add(resp *pipeline.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[resp.QueryID]; exists {
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.byID, oldest)
	}
	c.order = append(c.order, resp.QueryID)
	c.byID[resp.QueryID] = resp
}

func (c *responseCache) Get(id string) (*pipeline.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.byID[id]
	return resp, ok
}

// Recent returns up to n responses, newest first.
func (c *responseCache) Recent(n int) []*pipeline.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*pipeline.Response, 0, n)
	for i := len(c.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, c.byID[c.order[i]])
	}
	return out
}
