package consensus

import (
	"testing"

	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// forkSetup builds two branches off genesis with E 10:
//
//	genesis -> a1 -> a2 -> a3   (all by A, allowance 1)
//	        -> b1 -> b2         (all by B, allowance 3)
func forkSetup(t *testing.T) (h *harness, a, b *crypto.PrivateKey, as, bs []types.Hash) {
	t.Helper()
	h = newHarness(t, Params{EpochLength: 10})
	a, b = h.newKey(), h.newKey()
	h.mint(a.Address(), 3000)
	h.mint(b.Address(), 3000)
	h.mint(types.Address{0x70}, 4000)
	h.mustJoin(a, 1000)
	h.mustJoin(b, 3000)

	as = h.chain(a, h.genesis, 3)
	bs = h.chain(b, h.genesis, 2)
	return h, a, b, as, bs
}

func TestGetTip(t *testing.T) {
	h, a, b, as, bs := forkSetup(t)

	tests := []struct {
		name      string
		operators []types.Address
		wantID    types.Hash
		wantScore uint64
	}{
		{"both operators", []types.Address{a.Address(), b.Address()}, bs[1], 2},
		{"only A", []types.Address{a.Address()}, as[0], 1},
		{"only B", []types.Address{b.Address()}, bs[1], 2},
		{"repeated entries", []types.Address{a.Address(), b.Address(), b.Address()}, bs[1], 2},
		{"no operators", nil, h.genesis, 0},
		{"unstaked operator", []types.Address{{0x42}}, h.genesis, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.eng.GetTip(tt.operators)
			if err != nil {
				t.Fatalf("GetTip: %v", err)
			}
			if got.ID != tt.wantID || got.Score != tt.wantScore {
				t.Errorf("GetTip = %s/%d, want %s/%d", got.ID.Short(), got.Score, tt.wantID.Short(), tt.wantScore)
			}
		})
	}
}

func TestGetTip_TieKeepsFirstBranch(t *testing.T) {
	h := newHarness(t, Params{EpochLength: 10})
	a, b := h.newKey(), h.newKey()
	h.mint(a.Address(), 1000)
	h.mint(b.Address(), 1000)
	h.mustJoin(a, 200) // allowance 1
	h.mustJoin(b, 200)

	first := h.mustSubmit(a, h.genesis)
	h.mustSubmit(b, h.genesis)

	got, err := h.eng.GetTip([]types.Address{a.Address(), b.Address()})
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	if got.ID != first || got.Score != 1 {
		t.Errorf("GetTip = %s/%d, want %s/1", got.ID.Short(), got.Score, first.Short())
	}
}

func TestGetTip_ScoreBoundedByAllowance(t *testing.T) {
	h, a, b, _, _ := forkSetup(t)
	ops := []types.Address{a.Address(), b.Address()}
	// B's branch grows past B's allowance of 3.
	bs := h.chain(b, h.tip(), 4)

	got, err := h.eng.GetTip(ops)
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	var sum uint64
	supply, _ := h.ledger.TotalSupply()
	for _, op := range ops {
		stake, _ := h.eng.Stake(op)
		allowance, _ := h.eng.Params().allowance(stake, supply)
		sum += allowance
	}
	if got.Score > sum {
		t.Errorf("score %d exceeds total allowance %d", got.Score, sum)
	}
	// A's block plus three of B's; the fourth B block does not count.
	if got.ID != bs[2] || got.Score != 4 {
		t.Errorf("GetTip = %s/%d, want %s/4", got.ID.Short(), got.Score, bs[2].Short())
	}
}

func TestGetTip_Cache(t *testing.T) {
	h, a, b, _, bs := forkSetup(t)
	ops := []types.Address{a.Address(), b.Address()}

	first, err := h.eng.GetTip(ops)
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	first.Score = 99
	again, _ := h.eng.GetTip(ops)
	if again.Score != 2 {
		t.Errorf("cached result was mutated through a returned copy: %d", again.Score)
	}

	b3 := h.mustSubmit(b, bs[1])
	after, _ := h.eng.GetTip(ops)
	if after.ID != b3 || after.Score != 3 {
		t.Errorf("GetTip after new block = %s/%d, want %s/3", after.ID.Short(), after.Score, b3.Short())
	}
}

func TestGetTip_StartsAtHorizon(t *testing.T) {
	h := newHarness(t, Params{EpochLength: 2})
	key := h.newKey()
	h.mint(key.Address(), 1000)
	h.mustJoin(key, 1000) // allowance 2
	ids := h.chain(key, h.genesis, 6)

	got, err := h.eng.GetTip([]types.Address{key.Address()})
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	// The horizon block at height 4 and block 5 use up the allowance.
	if got.ID != ids[4] || got.Score != 2 {
		t.Errorf("GetTip = %s/%d, want %s/2", got.ID.Short(), got.Score, ids[4].Short())
	}
}

func TestGetTip_Concurrent(t *testing.T) {
	h, a, b, _, bs := forkSetup(t)
	ops := []types.Address{a.Address(), b.Address()}

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			r, err := h.eng.GetTip(ops)
			if err == nil && r.ID != bs[1] {
				err = storage.ErrNotFound
			}
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent GetTip: %v", err)
		}
	}
}
