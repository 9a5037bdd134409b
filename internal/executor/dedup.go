package executor

import (
	"sync"
	"time"
)

// Dedup prevents the same action from being dispatched more than once within
// a configurable time-to-live window. Actors re-emit outstanding work on
// every tick, so without this a slow confirmation would be re-sent on each
// heartbeat. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // action key -> last dispatch time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup instance that considers an action a duplicate if
// it has been dispatched within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate returns true if the action key has been seen within the TTL
// window. If the key has not been seen (or has expired), it is recorded and
// false is returned.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if lastSeen, ok := d.seen[key]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[key] = now
	return false
}

// Cleanup removes entries that have expired beyond the TTL. This should be
// called periodically to prevent unbounded memory growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
