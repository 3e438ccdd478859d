package consensus

import (
	"errors"
	"testing"

	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

func TestGetBlock(t *testing.T) {
	h := newHarness(t, Params{EpochLength: 4})
	a, b := h.newKey(), h.newKey()
	h.mint(a.Address(), 1000)
	h.mint(b.Address(), 1000)
	h.mustJoin(a, 500)
	h.mustJoin(b, 500)
	ids := h.chain(a, h.genesis, 3)
	h.mustSubmit(b, ids[0]) // side block at height 2

	for i, id := range ids {
		n, err := h.eng.GetBlock(uint64(i + 1))
		if err != nil {
			t.Fatalf("GetBlock(%d): %v", i+1, err)
		}
		if n.ID != id {
			t.Errorf("GetBlock(%d) = %s, want %s", i+1, n.ID.Short(), id.Short())
		}
	}
	g, err := h.eng.GetBlock(0)
	if err != nil || g.ID != h.genesis {
		t.Errorf("GetBlock(0) = %v, %v", g, err)
	}
	if _, err := h.eng.GetBlock(4); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("GetBlock above tip err = %v", err)
	}
}

func TestGetBlock_ArchivedHeight(t *testing.T) {
	h, next := setupSingleOperator(t, Params{EpochLength: 1})
	for i := 0; i < 4; i++ {
		next()
	}
	h.submitAndPrune(t, h.tip(), []types.Hash{h.genesis})
	if _, err := h.eng.GetBlock(0); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("GetBlock(0) after archive err = %v", err)
	}
	if _, err := h.eng.GetBlock(1); err != nil {
		t.Errorf("GetBlock(1): %v", err)
	}
}

func TestBranchQueries_Unknown(t *testing.T) {
	h := newHarness(t, Params{EpochLength: 4})
	if _, err := h.eng.GetBranchCount(types.Hash{0x01}); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("GetBranchCount err = %v", err)
	}
	if _, err := h.eng.GetBranchAtIndex(h.genesis, 0); err == nil {
		t.Error("GetBranchAtIndex on a leaf returned no error")
	}
	if n, _ := h.eng.GetBranchCount(h.genesis); n != 0 {
		t.Errorf("genesis children = %d", n)
	}
}

func TestInfo(t *testing.T) {
	h, next := setupSingleOperator(t, Params{EpochLength: 4, BlockReward: 7})
	id := next()
	info, err := h.eng.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.TipID != id || info.TipHeight != 1 || info.Operators != 1 {
		t.Errorf("info = %+v", info)
	}
	if info.Params.BlockReward != 7 || info.Hash != "blake3" {
		t.Errorf("info params = %+v hash %q", info.Params, info.Hash)
	}
}

func TestEngine_Reopen(t *testing.T) {
	h := newHarness(t, Params{EpochLength: 4})
	key := h.newKey()
	h.mint(key.Address(), 1000)
	h.mustJoin(key, 250)
	tip := h.mustSubmit(key, h.genesis)

	again, err := New(h.eng.db, Config{Params: h.eng.Params(), Address: bridgeAddr, Ledger: h.ledger, Parent: h.clock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Init on initialized state keeps it.
	if err := again.Init(types.Hash{0x01}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	top, err := again.GetHighest()
	if err != nil || top.ID != tip {
		t.Errorf("tip after reopen = %v, %v", top, err)
	}
	if staked, _ := again.IsStaked(key.Address()); !staked {
		t.Error("operator lost after reopen")
	}
}

func TestNew_Validation(t *testing.T) {
	base := func() Config {
		h := newHarness(t, Params{EpochLength: 4})
		return Config{Params: Params{EpochLength: 4}, Address: bridgeAddr, Ledger: h.ledger, Parent: h.clock}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero epoch", func(c *Config) { c.Params.EpochLength = 0 }},
		{"huge epoch", func(c *Config) { c.Params.EpochLength = MaxEpochLength + 1 }},
		{"no ledger", func(c *Config) { c.Ledger = nil }},
		{"no parent", func(c *Config) { c.Parent = nil }},
		{"no address", func(c *Config) { c.Address = types.Address{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if _, err := New(storage.NewMemory(), cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
