package refresh

import (
	"context"
	"sync"
)

// Inflight guarantees at most one login per account at a time. A caller
// arriving while the account is already being refreshed waits for that
// attempt and shares its result instead of starting a second browser.
type Inflight struct {
	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	done    chan struct{}
	outcome Outcome
}

func NewInflight() *Inflight {
	return &Inflight{inflight: make(map[string]*flight)}
}

// Do runs fn for username unless a run is already in flight, in which case
// it waits for that one. shared reports whether the outcome came from
// another caller.
func (c *Inflight) Do(ctx context.Context, username string, fn func(ctx context.Context) Outcome) (out Outcome, shared bool, err error) {
	c.mu.Lock()
	if f := c.inflight[username]; f != nil {
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return Outcome{}, true, ctx.Err()
		case <-f.done:
			return f.outcome, true, nil
		}
	}
	f := &flight{done: make(chan struct{})}
	c.inflight[username] = f
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, username)
		c.mu.Unlock()
		close(f.done)
	}()
	f.outcome = fn(ctx)
	return f.outcome, false, nil
}

// Busy reports whether username has a login in flight.
func (c *Inflight) Busy(username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[username] != nil
}
