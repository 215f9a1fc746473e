package engine

import "github.com/openwager/wagerbook/internal/domain"

// QueueEntry is a pending maker-side pairing instruction produced when an
// incoming order matched resting liquidity. The taker's order and position
// were updated at creation time; the entry tells the crank which order
// pool owes the matched stake.
type QueueEntry struct {
	Side    domain.Side // side of the maker orders the stake belongs to
	Outcome int
	Price   domain.Price
	Stake   int64
}

// PoolKey identifies a FIFO pool of resting orders at one price level.
type PoolKey struct {
	Side    domain.Side
	Outcome int
	Price   domain.Price
}

// MatchingQueue is the ordered backlog of maker pairing work for one
// market, plus the per-level order pools that give matching its price-time
// priority: within a level, the earliest-enqueued order is consumed first.
type MatchingQueue struct {
	entries []QueueEntry
	pools   map[PoolKey][]string // orderID FIFO per level
}

// NewMatchingQueue creates an empty queue.
func NewMatchingQueue() *MatchingQueue {
	return &MatchingQueue{pools: make(map[PoolKey][]string)}
}

// Enqueue appends a pairing instruction.
func (q *MatchingQueue) Enqueue(e QueueEntry) {
	q.entries = append(q.entries, e)
}

// Dequeue pops the oldest pairing instruction.
func (q *MatchingQueue) Dequeue() (QueueEntry, bool) {
	if len(q.entries) == 0 {
		return QueueEntry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// Len returns the number of pending pairing instructions.
func (q *MatchingQueue) Len() int {
	return len(q.entries)
}

// Purge drops all pending pairing instructions, returning how many were
// dropped. Used by authority-forced voiding.
func (q *MatchingQueue) Purge() int {
	n := len(q.entries)
	q.entries = nil
	return n
}

// PoolEnqueue appends an order to the FIFO pool for its level.
func (q *MatchingQueue) PoolEnqueue(key PoolKey, orderID string) {
	q.pools[key] = append(q.pools[key], orderID)
}

// PoolPeek returns the order at the front of the pool, if any.
func (q *MatchingQueue) PoolPeek(key PoolKey) (string, bool) {
	pool := q.pools[key]
	if len(pool) == 0 {
		return "", false
	}
	return pool[0], true
}

// PoolDequeue removes the order at the front of the pool.
func (q *MatchingQueue) PoolDequeue(key PoolKey) {
	pool := q.pools[key]
	if len(pool) == 0 {
		return
	}
	pool = pool[1:]
	if len(pool) == 0 {
		delete(q.pools, key)
	} else {
		q.pools[key] = pool
	}
}

// PoolRemove removes an order from anywhere in the pool, for cancellation.
// Reports whether the order was present.
func (q *MatchingQueue) PoolRemove(key PoolKey, orderID string) bool {
	pool := q.pools[key]
	for i, id := range pool {
		if id == orderID {
			pool = append(pool[:i], pool[i+1:]...)
			if len(pool) == 0 {
				delete(q.pools, key)
			} else {
				q.pools[key] = pool
			}
			return true
		}
	}
	return false
}
