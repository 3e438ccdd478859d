// Package parent exposes the parent ledger's block number and timestamp,
// which pace tip advances and time operator stake periods.
package parent

import (
	"sync"
	"time"
)

// Chain reports the parent ledger's current position.
type Chain interface {
	// BlockNumber is the current parent block number.
	BlockNumber() uint64
	// Time is the current parent block timestamp in unix seconds.
	Time() uint64
}

// Clock derives the parent position from wall time: one block every
// interval since genesis.
type Clock struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

// NewClock creates a Clock. interval must be positive.
func NewClock(genesis time.Time, interval time.Duration) *Clock {
	if interval <= 0 {
		interval = time.Second
	}
	return &Clock{genesis: genesis, interval: interval, now: time.Now}
}

// BlockNumber implements Chain.
func (c *Clock) BlockNumber() uint64 {
	elapsed := c.now().Sub(c.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.interval)
}

// Time implements Chain. It is the timestamp of the current block.
func (c *Clock) Time() uint64 {
	n := c.BlockNumber()
	return uint64(c.genesis.Add(time.Duration(n) * c.interval).Unix())
}

// Manual is a Chain whose position is set by hand.
type Manual struct {
	mu     sync.Mutex
	number uint64
	time   uint64
}

// NewManual creates a Manual at block number and timestamp.
func NewManual(number, timestamp uint64) *Manual {
	return &Manual{number: number, time: timestamp}
}

// BlockNumber implements Chain.
func (m *Manual) BlockNumber() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.number
}

// Time implements Chain.
func (m *Manual) Time() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.time
}

// Advance moves forward by blocks blocks and secs seconds.
func (m *Manual) Advance(blocks, secs uint64) {
	m.mu.Lock()
	m.number += blocks
	m.time += secs
	m.mu.Unlock()
}
