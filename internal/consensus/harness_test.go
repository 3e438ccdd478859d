package consensus

import (
	"encoding/binary"
	"testing"

	"github.com/ltlmaps/leap-contracts/internal/events"
	"github.com/ltlmaps/leap-contracts/internal/parent"
	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/internal/token"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

var bridgeAddr = types.Address{0xb1, 0xd6}

type harness struct {
	t       *testing.T
	eng     *Engine
	ledger  *token.Store
	clock   *parent.Manual
	events  *events.Recorder
	genesis types.Hash
	hasher  crypto.Hasher
	keys    map[types.Address]*crypto.PrivateKey
	nonce   uint64
}

// newHarness builds an initialized engine with a fresh ledger. The parent
// clock starts at block 1000, time 1_000_000.
func newHarness(t *testing.T, p Params) *harness {
	t.Helper()
	ledger := token.NewStore(storage.NewMemory())
	clock := parent.NewManual(1000, 1_000_000)
	rec := &events.Recorder{}
	eng, err := New(storage.NewMemory(), Config{
		Params:  p,
		Address: bridgeAddr,
		Ledger:  ledger,
		Parent:  clock,
		Events:  rec,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	genesis := GenesisID(eng.Hasher(), "test")
	if err := eng.Init(genesis); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return &harness{t: t, eng: eng, ledger: ledger, clock: clock, events: rec, genesis: genesis, hasher: eng.Hasher(),
		keys: make(map[types.Address]*crypto.PrivateKey)}
}

func (h *harness) newKey() *crypto.PrivateKey {
	h.t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		h.t.Fatalf("GenerateKey: %v", err)
	}
	h.keys[k.Address()] = k
	return k
}

func (h *harness) mint(addr types.Address, amount uint64) {
	h.t.Helper()
	if err := h.ledger.Mint(addr, amount); err != nil {
		h.t.Fatalf("Mint: %v", err)
	}
}

// join approves and stakes amount for key.
func (h *harness) join(key *crypto.PrivateKey, amount uint64) error {
	h.t.Helper()
	if err := h.ledger.Approve(key.Address(), bridgeAddr, amount); err != nil {
		h.t.Fatalf("Approve: %v", err)
	}
	_, err := h.eng.Join(key.Address(), amount)
	return err
}

func (h *harness) mustJoin(key *crypto.PrivateKey, amount uint64) {
	h.t.Helper()
	if err := h.join(key, amount); err != nil {
		h.t.Fatalf("Join(%d): %v", amount, err)
	}
}

func (h *harness) height(id types.Hash) uint64 {
	h.t.Helper()
	n, err := h.eng.GetBlockByID(id)
	if err != nil {
		h.t.Fatalf("GetBlockByID(%s): %v", id.Short(), err)
	}
	return n.Height
}

// seal signs a block on prev with the given root.
func (h *harness) seal(key *crypto.PrivateKey, prev, root types.Hash) *block.Seal {
	h.t.Helper()
	return block.Sign(h.hasher, key, prev, h.height(prev)+1, root)
}

func (h *harness) submit(key *crypto.PrivateKey, prev types.Hash) (types.Hash, error) {
	h.t.Helper()
	h.nonce++
	root := h.hasher.Sum(prev[:], key.PublicKey(), nonceBytes(h.nonce))
	s := h.seal(key, prev, root)
	res, err := h.eng.SubmitBlock(s.Prev, s.Root, s.Signature)
	if err != nil {
		return types.Hash{}, err
	}
	return res.Node.ID, nil
}

func (h *harness) mustSubmit(key *crypto.PrivateKey, prev types.Hash) types.Hash {
	h.t.Helper()
	id, err := h.submit(key, prev)
	if err != nil {
		h.t.Fatalf("SubmitBlock on %s: %v", prev.Short(), err)
	}
	return id
}

// chain mines n blocks by key on top of prev and returns their ids.
func (h *harness) chain(key *crypto.PrivateKey, prev types.Hash, n int) []types.Hash {
	h.t.Helper()
	ids := make([]types.Hash, 0, n)
	for i := 0; i < n; i++ {
		prev = h.mustSubmit(key, prev)
		ids = append(ids, prev)
	}
	return ids
}

func (h *harness) tip() types.Hash {
	h.t.Helper()
	n, err := h.eng.GetHighest()
	if err != nil {
		h.t.Fatalf("GetHighest: %v", err)
	}
	return n.ID
}

func (h *harness) balance(addr types.Address) uint64 {
	h.t.Helper()
	b, err := h.ledger.BalanceOf(addr)
	if err != nil {
		h.t.Fatalf("BalanceOf: %v", err)
	}
	return b
}

func nonceBytes(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}
