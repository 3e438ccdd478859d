package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// ErrStaleNonce is returned when a signed call reuses an old nonce.
var ErrStaleNonce = errors.New("nonce must exceed last used nonce")

var prefixNonce = []byte("n/") // n/<addr(20)> -> uint64

// NonceStore records the last accepted call nonce per account so a signed
// call cannot be replayed, including across restarts.
type NonceStore struct {
	mu sync.Mutex
	db storage.DB
}

// NewNonceStore creates a nonce store backed by db.
func NewNonceStore(db storage.DB) *NonceStore {
	return &NonceStore{db: db}
}

// Last returns the last nonce accepted from addr, zero if none.
func (s *NonceStore) Last(addr types.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last(addr)
}

// Use accepts nonce for addr if it is above the last one.
func (s *NonceStore) Use(addr types.Address, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.last(addr)
	if err != nil {
		return err
	}
	if nonce <= last {
		return fmt.Errorf("%w: got %d, last %d", ErrStaleNonce, nonce, last)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	if err := s.db.Put(nonceKey(addr), buf[:]); err != nil {
		return fmt.Errorf("nonce put: %w", err)
	}
	return nil
}

func (s *NonceStore) last(addr types.Address) (uint64, error) {
	data, err := s.db.Get(nonceKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("nonce get: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("nonce record for %s is %d bytes", addr, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func nonceKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixNonce...), addr[:]...)
}
