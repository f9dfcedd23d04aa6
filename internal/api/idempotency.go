package api

import (
	"errors"
	"sync"
)

var (
	errIdempotencyMismatch   = errors.New("idempotency key reused with a different request")
	errIdempotencyInProgress = errors.New("request with this idempotency key is in progress")
)

type idempotencyState int

const (
	stateInProgress idempotencyState = iota
	stateCompleted
)

type idempotencyRecord struct {
	requestHash string
	state       idempotencyState
	status      int
	body        []byte
}

// IdempotencyCache lets callers retry financial mutations safely: the first
// request with a key reserves it, the stored response replays on later
// attempts, and key reuse with a different payload is rejected. Failed
// requests release the key so an honest retry can proceed.
//
// A capacity bounds memory: once full, the oldest completed record is
// dropped. In-flight reservations are never evicted. capacity <= 0 means
// unbounded.
type IdempotencyCache struct {
	capacity int

	mu      sync.Mutex
	records map[string]*idempotencyRecord
	order   []string
}

func NewIdempotencyCache(capacity int) *IdempotencyCache {
	return &IdempotencyCache{
		capacity: capacity,
		records:  make(map[string]*idempotencyRecord),
	}
}

func cacheKey(userID, key string) string {
	return userID + "\x00" + key
}

// Begin reserves the key. It returns a completed record to replay, or an
// error when the key is already held or the payload hash differs.
func (c *IdempotencyCache) Begin(userID, key, requestHash string) (*idempotencyRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := cacheKey(userID, key)
	rec, ok := c.records[k]
	if !ok {
		c.records[k] = &idempotencyRecord{requestHash: requestHash, state: stateInProgress}
		c.order = append(c.order, k)
		c.evict()
		return nil, nil
	}
	if rec.requestHash != requestHash {
		return nil, errIdempotencyMismatch
	}
	if rec.state == stateInProgress {
		return nil, errIdempotencyInProgress
	}
	return rec, nil
}

// Complete stores the response for replay.
func (c *IdempotencyCache) Complete(userID, key string, status int, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[cacheKey(userID, key)]
	if !ok {
		return
	}
	rec.state = stateCompleted
	rec.status = status
	rec.body = append([]byte(nil), body...)
}

// Release frees the key after a failed request.
func (c *IdempotencyCache) Release(userID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.records, cacheKey(userID, key))
}

// evict drops oldest-first until the cache fits its capacity, skipping
// in-flight reservations. Callers hold c.mu.
func (c *IdempotencyCache) evict() {
	if c.capacity <= 0 {
		return
	}
	for len(c.records) > c.capacity {
		evicted := false
		for i, k := range c.order {
			rec, ok := c.records[k]
			if !ok {
				// Released earlier; just drop the stale order entry.
				c.order = append(c.order[:i], c.order[i+1:]...)
				evicted = true
				break
			}
			if rec.state == stateCompleted {
				delete(c.records, k)
				c.order = append(c.order[:i], c.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}
