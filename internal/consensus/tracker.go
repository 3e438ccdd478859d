package consensus

import (
	"sort"
	"sync"
	"time"

	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// OperatorStats holds in-memory block production statistics for one
// operator. Stats reset on node restart.
type OperatorStats struct {
	Address    types.Address `json:"address"`
	LastBlock  time.Time     `json:"last_block"`
	LastHeight uint64        `json:"last_height"`
	BlockCount uint64        `json:"block_count"`
	// LastHeartbeat is the last verified gossip heartbeat.
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// OperatorTracker records accepted blocks per operator. It has no
// consensus effect.
type OperatorTracker struct {
	mu    sync.RWMutex
	stats map[types.Address]*OperatorStats
	now   func() time.Time
}

// NewOperatorTracker creates an empty tracker.
func NewOperatorTracker() *OperatorTracker {
	return &OperatorTracker{
		stats: make(map[types.Address]*OperatorStats),
		now:   time.Now,
	}
}

// RecordBlock records that op produced an accepted block at height.
func (t *OperatorTracker) RecordBlock(op types.Address, height uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[op]
	if !ok {
		s = &OperatorStats{Address: op}
		t.stats[op] = s
	}
	s.LastBlock = t.now()
	if height > s.LastHeight {
		s.LastHeight = height
	}
	s.BlockCount++
}

// RecordHeartbeat records a liveness heartbeat from op.
func (t *OperatorTracker) RecordHeartbeat(op types.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[op]
	if !ok {
		s = &OperatorStats{Address: op}
		t.stats[op] = s
	}
	s.LastHeartbeat = t.now()
}

// IsActive reports whether op produced a block or sent a heartbeat within
// window.
func (t *OperatorTracker) IsActive(op types.Address, window time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.stats[op]
	if !ok {
		return false
	}
	last := s.LastBlock
	if s.LastHeartbeat.After(last) {
		last = s.LastHeartbeat
	}
	if last.IsZero() {
		return false
	}
	return t.now().Sub(last) <= window
}

// Stats returns a copy of op's stats, or nil if op is not tracked.
func (t *OperatorTracker) Stats(op types.Address) *OperatorStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.stats[op]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// All returns copies of all tracked stats in address order.
func (t *OperatorTracker) All() []*OperatorStats {
	t.mu.RLock()
	out := make([]*OperatorStats, 0, len(t.stats))
	for _, s := range t.stats {
		cp := *s
		out = append(out, &cp)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out
}
