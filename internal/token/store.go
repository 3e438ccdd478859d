package token

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Key prefixes and state keys.
var (
	prefixBalance   = []byte("b/") // b/<addr(20)> -> uint64
	prefixAllowance = []byte("a/") // a/<owner(20)><spender(20)> -> uint64
	keySupply       = []byte("s/supply")
	keyMetadata     = []byte("s/meta")
)

// Store is a Ledger persisted in a storage.DB. Balance-changing calls
// are serialized.
type Store struct {
	mu sync.Mutex
	db storage.DB
}

// NewStore creates a ledger backed by db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Mint credits amount to addr and raises the total supply.
func (s *Store) Mint(addr types.Address, amount uint64) error {
	if addr.IsZero() {
		return ErrZeroAddress
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	supply, err := s.getUint(keySupply)
	if err != nil {
		return err
	}
	newSupply, carry := bits.Add64(supply, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: supply %d + %d", ErrOverflow, supply, amount)
	}
	bal, err := s.getUint(balanceKey(addr))
	if err != nil {
		return err
	}
	if err := s.putUint(balanceKey(addr), bal+amount); err != nil {
		return err
	}
	return s.putUint(keySupply, newSupply)
}

// TotalSupply returns the number of tokens minted.
func (s *Store) TotalSupply() (uint64, error) {
	return s.getUint(keySupply)
}

// BalanceOf returns the balance of addr.
func (s *Store) BalanceOf(addr types.Address) (uint64, error) {
	return s.getUint(balanceKey(addr))
}

// Allowance returns how much spender may move out of owner's balance.
func (s *Store) Allowance(owner, spender types.Address) (uint64, error) {
	return s.getUint(allowanceKey(owner, spender))
}

// Approve sets spender's allowance over owner's balance.
func (s *Store) Approve(owner, spender types.Address, amount uint64) error {
	if owner.IsZero() || spender.IsZero() {
		return ErrZeroAddress
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putUint(allowanceKey(owner, spender), amount)
}

// Transfer moves amount from one balance to another.
func (s *Store) Transfer(from, to types.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.move(from, to, amount)
}

// TransferFrom moves amount out of owner's balance on spender's behalf
// and lowers the allowance.
func (s *Store) TransferFrom(spender, owner, to types.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed, err := s.getUint(allowanceKey(owner, spender))
	if err != nil {
		return err
	}
	if allowed < amount {
		return fmt.Errorf("%w: %s allowed %d, need %d", ErrInsufficientAllowance, spender, allowed, amount)
	}
	if err := s.move(owner, to, amount); err != nil {
		return err
	}
	return s.putUint(allowanceKey(owner, spender), allowed-amount)
}

// SetMetadata stores the token description.
func (s *Store) SetMetadata(meta *Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("metadata marshal: %w", err)
	}
	return s.db.Put(keyMetadata, data)
}

// Metadata returns the token description, or an empty one if unset.
func (s *Store) Metadata() (*Metadata, error) {
	data, err := s.db.Get(keyMetadata)
	if errors.Is(err, storage.ErrNotFound) {
		return &Metadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadata get: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("metadata unmarshal: %w", err)
	}
	return &meta, nil
}

// Holders calls fn for every non-zero balance.
func (s *Store) Holders(fn func(types.Address, uint64) error) error {
	return s.db.ForEach(prefixBalance, func(key, value []byte) error {
		if len(key) != len(prefixBalance)+types.AddressSize || len(value) != 8 {
			return fmt.Errorf("corrupt balance entry")
		}
		var addr types.Address
		copy(addr[:], key[len(prefixBalance):])
		bal := binary.BigEndian.Uint64(value)
		if bal == 0 {
			return nil
		}
		return fn(addr, bal)
	})
}

func (s *Store) move(from, to types.Address, amount uint64) error {
	if to.IsZero() {
		return ErrZeroAddress
	}
	fromBal, err := s.getUint(balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientBalance, from, fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := s.getUint(balanceKey(to))
	if err != nil {
		return err
	}
	newTo, carry := bits.Add64(toBal, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: balance of %s", ErrOverflow, to)
	}
	if err := s.putUint(balanceKey(from), fromBal-amount); err != nil {
		return err
	}
	return s.putUint(balanceKey(to), newTo)
}

func (s *Store) getUint(key []byte) (uint64, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger get: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt ledger value: %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (s *Store) putUint(key []byte, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	if err := s.db.Put(key, buf[:]); err != nil {
		return fmt.Errorf("ledger put: %w", err)
	}
	return nil
}

func balanceKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixBalance...), addr[:]...)
}

func allowanceKey(owner, spender types.Address) []byte {
	k := append(append([]byte{}, prefixAllowance...), owner[:]...)
	return append(k, spender[:]...)
}
