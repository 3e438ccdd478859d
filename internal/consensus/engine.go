// Package consensus is the bridge's block-tree consensus and reward engine.
//
// An Engine owns the block tree, the operator registry and the chain state.
// Every state-changing call runs as one transition against a staging
// overlay and is committed atomically only if all of its checks pass, so a
// rejected call leaves no trace. Queries read committed state only.
package consensus

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ltlmaps/leap-contracts/internal/events"
	"github.com/ltlmaps/leap-contracts/internal/log"
	"github.com/ltlmaps/leap-contracts/internal/parent"
	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/internal/token"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

const tipCacheSize = 256

// Config wires the engine to its collaborators.
type Config struct {
	Params Params
	// Address is the bridge's own account in the token ledger. Stakes are
	// escrowed there and rewards paid from it.
	Address types.Address
	Ledger  token.Ledger
	Parent  parent.Chain
	// Hasher defaults to BLAKE3.
	Hasher crypto.Hasher
	// Recoverer defaults to compact secp256k1 recovery.
	Recoverer crypto.Recoverer
	// Events receives notifications after each committed transition.
	// May be nil.
	Events events.Sink
}

// Engine is the bridge state machine.
type Engine struct {
	mu sync.RWMutex
	db storage.DB

	// pubMu orders event delivery. It is taken under mu.
	pubMu sync.Mutex

	params    Params
	self      types.Address
	ledger    token.Ledger
	parent    parent.Chain
	hasher    crypto.Hasher
	recoverer crypto.Recoverer
	sink      events.Sink

	// version increments on every commit; it keys the tip cache.
	version  uint64
	tipCache *lru.Cache[string, *TipResult]
	tracker  *OperatorTracker
}

// New creates an engine over db. Call Init once before submitting blocks.
func New(db storage.DB, cfg Config) (*Engine, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if cfg.Ledger == nil {
		return nil, errors.New("engine needs a token ledger")
	}
	if cfg.Parent == nil {
		return nil, errors.New("engine needs a parent chain")
	}
	if cfg.Address.IsZero() {
		return nil, errors.New("engine needs a bridge address")
	}
	if cfg.Hasher == nil {
		cfg.Hasher = crypto.Blake3{}
	}
	if cfg.Recoverer == nil {
		cfg.Recoverer = crypto.CompactRecoverer{}
	}
	cache, err := lru.New[string, *TipResult](tipCacheSize)
	if err != nil {
		return nil, fmt.Errorf("tip cache: %w", err)
	}
	return &Engine{
		db:        db,
		params:    cfg.Params,
		self:      cfg.Address,
		ledger:    cfg.Ledger,
		parent:    cfg.Parent,
		hasher:    cfg.Hasher,
		recoverer: cfg.Recoverer,
		sink:      cfg.Events,
		tipCache:  cache,
		tracker:   NewOperatorTracker(),
	}, nil
}

// GenesisID returns the default root block id for a chain name.
func GenesisID(h crypto.Hasher, chainID string) types.Hash {
	return h.Sum([]byte("leap-genesis"), []byte(chainID))
}

// Init stores the root block and points the tip at it. It is a no-op if
// the engine's database already holds state.
func (e *Engine) Init(genesis types.Hash) error {
	if genesis.IsZero() {
		return errors.New("genesis id must be non-zero")
	}
	return e.update(func(tx *txn) error {
		_, err := tx.tipID()
		if err == nil {
			return nil
		}
		if !errors.Is(err, errNotInitialized) {
			return err
		}
		if _, err := tx.tree.InsertRoot(genesis, types.Address{}, types.Hash{}); err != nil {
			return err
		}
		log.Bridge.Info().Str("genesis", genesis.String()).Msg("Block tree initialized")
		return tx.setTip(genesis)
	})
}

// Params returns the engine parameters.
func (e *Engine) Params() Params {
	return e.params
}

// Address returns the bridge's ledger account.
func (e *Engine) Address() types.Address {
	return e.self
}

// Hasher returns the hash function blocks are addressed with.
func (e *Engine) Hasher() crypto.Hasher {
	return e.hasher
}

// Tracker returns the in-memory operator activity tracker.
func (e *Engine) Tracker() *OperatorTracker {
	return e.tracker
}

// update runs fn as one atomic transition and then publishes its events.
// Events reach the sink in commit order. A sink must not start a transition
// from Publish.
func (e *Engine) update(fn func(tx *txn) error) error {
	evs, err := e.commit(fn)
	if err != nil {
		return err
	}
	defer e.pubMu.Unlock()
	if e.sink != nil {
		for _, ev := range evs {
			e.sink.Publish(ev)
		}
	}
	return nil
}

// commit applies fn under the write lock. On success it returns holding
// pubMu, taken before the write lock is released.
func (e *Engine) commit(fn func(tx *txn) error) ([]events.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ov := storage.NewOverlay(e.db)
	defer ov.Discard()
	tx := newTxn(ov)
	if err := fn(tx); err != nil {
		return nil, err
	}
	if err := ov.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	e.version++
	e.pubMu.Lock()
	return tx.events, nil
}

// view runs fn against committed state.
func (e *Engine) view(fn func(tx *txn) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(newTxn(e.db))
}
