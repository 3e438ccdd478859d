// Package operator persists the staked operator committee.
package operator

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// ErrNotFound is returned when an operator has no record.
var ErrNotFound = errors.New("operator not found")

// Record is one operator's stake state.
type Record struct {
	Address types.Address `json:"address"`
	Stake   uint64        `json:"stake"`
	// JoinedAt is the parent ledger timestamp of the last join.
	JoinedAt uint64 `json:"joined_at"`
	// ClaimedUntil is the first epoch start not yet claimed. It only grows.
	ClaimedUntil uint64 `json:"claimed_until"`
	Leaving      bool   `json:"leaving"`
	// LeaveHeight is the tip height when leave was requested.
	LeaveHeight uint64 `json:"leave_height,omitempty"`
}

// Staked reports whether the operator currently holds stake.
func (r *Record) Staked() bool {
	return r.Stake > 0
}

var (
	prefixRecord = []byte("o/") // o/<addr(20)> -> Record JSON
	keyCount     = []byte("c/count")
)

// Store reads and writes operator records.
type Store struct {
	db storage.DB
}

// NewStore creates a store backed by db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Get returns the record for addr.
func (s *Store) Get(addr types.Address) (*Record, error) {
	data, err := s.db.Get(recordKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("operator get: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("operator unmarshal: %w", err)
	}
	return &r, nil
}

// Lookup returns the record for addr, or nil if there is none.
func (s *Store) Lookup(addr types.Address) (*Record, error) {
	r, err := s.Get(addr)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// Put stores r.
func (s *Store) Put(r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("operator marshal: %w", err)
	}
	return s.db.Put(recordKey(r.Address), data)
}

// Delete removes the record for addr.
func (s *Store) Delete(addr types.Address) error {
	return s.db.Delete(recordKey(addr))
}

// All returns every record in address order.
func (s *Store) All() ([]*Record, error) {
	var out []*Record
	err := s.db.ForEach(prefixRecord, func(_, value []byte) error {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("operator unmarshal: %w", err)
		}
		out = append(out, &r)
		return nil
	})
	return out, err
}

// Count returns the registered operator count.
func (s *Store) Count() (uint64, error) {
	data, err := s.db.Get(keyCount)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("operator count: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt operator count")
	}
	return binary.BigEndian.Uint64(data), nil
}

// SetCount stores the registered operator count.
func (s *Store) SetCount(n uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return s.db.Put(keyCount, buf[:])
}

func recordKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixRecord...), addr[:]...)
}
