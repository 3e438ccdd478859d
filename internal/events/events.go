// Package events carries bridge notifications from the consensus engine
// to whoever listens: the log, the p2p gossip layer, tests.
package events

import (
	"sync"

	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Kind names an event.
type Kind string

// Event kinds.
const (
	TipAdvanced     Kind = "tip_advanced"
	BlockArchived   Kind = "block_archived"
	OperatorJoined  Kind = "operator_joined"
	OperatorLeaving Kind = "operator_leaving"
	OperatorRemoved Kind = "operator_removed"
	RewardClaimed   Kind = "reward_claimed"
)

// Event is a single notification. Which fields are set depends on Kind:
//
//	TipAdvanced     Height, Hash (block root)
//	BlockArchived   Height, Hash (former block id)
//	OperatorJoined  Height, Operator, Amount (stake added)
//	OperatorLeaving Height, Operator
//	OperatorRemoved Height, Operator, Amount (stake returned)
//	RewardClaimed   Height (epoch start), Operator, Amount
type Event struct {
	Kind     Kind          `json:"kind"`
	Height   uint64        `json:"height"`
	Hash     types.Hash    `json:"hash,omitempty"`
	Operator types.Address `json:"operator,omitempty"`
	Amount   uint64        `json:"amount,omitempty"`
}

// Sink receives events. Publish must not block for long; the engine calls
// it after committing a transition.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish implements Sink.
func (f SinkFunc) Publish(ev Event) { f(ev) }

// Bus fans events out to subscribed sinks in subscription order.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds s to the bus.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Publish implements Sink.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		s.Publish(ev)
	}
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Sink.
func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
