package consensus

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ltlmaps/leap-contracts/internal/blocktree"
	"github.com/ltlmaps/leap-contracts/internal/events"
	"github.com/ltlmaps/leap-contracts/internal/operator"
	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Namespaces inside the engine's database.
var (
	nsTree      = []byte("t/")
	nsOperators = []byte("o/")
	nsState     = []byte("s/")
)

// State keys.
var (
	keyTip        = []byte("tip")    // block id
	keyLastParent = []byte("parent") // uint64
)

// txn is one view of the engine's state: the block tree, the operator
// registry and the chain state, all over the same DB. Transitions build
// it over an overlay; queries over the committed DB.
type txn struct {
	tree  *blocktree.Tree
	ops   *operator.Store
	state storage.DB

	events []events.Event
}

func newTxn(db storage.DB) *txn {
	return &txn{
		tree:  blocktree.New(storage.NewPrefixDB(db, nsTree)),
		ops:   operator.NewStore(storage.NewPrefixDB(db, nsOperators)),
		state: storage.NewPrefixDB(db, nsState),
	}
}

func (tx *txn) emit(ev events.Event) {
	tx.events = append(tx.events, ev)
}

func (tx *txn) tipID() (types.Hash, error) {
	data, err := tx.state.Get(keyTip)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, errNotInitialized
	}
	if err != nil {
		return types.Hash{}, fmt.Errorf("tip get: %w", err)
	}
	return types.BytesToHash(data)
}

func (tx *txn) tip() (*blocktree.Node, error) {
	id, err := tx.tipID()
	if err != nil {
		return nil, err
	}
	n, err := tx.tree.Get(id)
	if err != nil {
		return nil, fmt.Errorf("tip block: %w", err)
	}
	return n, nil
}

func (tx *txn) setTip(id types.Hash) error {
	return tx.state.Put(keyTip, id[:])
}

func (tx *txn) lastParentBlock() (uint64, error) {
	data, err := tx.state.Get(keyLastParent)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last parent block get: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt last parent block")
	}
	return binary.BigEndian.Uint64(data), nil
}

func (tx *txn) setLastParentBlock(n uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return tx.state.Put(keyLastParent, buf[:])
}

var errNotInitialized = errors.New("engine state not initialized")
