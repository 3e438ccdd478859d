package node

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ltlmaps/leap-contracts/config"
	"github.com/ltlmaps/leap-contracts/internal/consensus"
	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/internal/token"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// keyGenesis records the hash of the genesis the database was built from.
var keyGenesis = []byte("genesis")

// ErrGenesisMismatch is returned when the database was initialized from a
// different genesis.
var ErrGenesisMismatch = errors.New("database was initialized from a different genesis")

// bootstrap applies gen to a fresh database: it mints the allocations and
// the reward pool, stores the token metadata, plants the root block and
// stakes the genesis operators. All of it is staged in one overlay with the
// genesis marker and committed together, so a failed bootstrap leaves db
// untouched. On a database that already holds gen it does nothing and
// reports false. cfg supplies the engine parameters; its Ledger and Events
// are replaced.
func bootstrap(db storage.DB, gen *config.Genesis, cfg consensus.Config) (bool, error) {
	genHash, err := gen.Hash()
	if err != nil {
		return false, fmt.Errorf("genesis hash: %w", err)
	}
	stored, err := storage.NewPrefixDB(db, prefixMeta).Get(keyGenesis)
	switch {
	case err == nil:
		if !bytes.Equal(stored, genHash[:]) {
			return false, fmt.Errorf("%w: have %x, want %s", ErrGenesisMismatch, stored, genHash)
		}
		return false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return false, fmt.Errorf("read genesis marker: %w", err)
	}

	ov := storage.NewOverlay(db)
	defer ov.Discard()
	ledger := token.NewStore(storage.NewPrefixDB(ov, prefixLedger))
	cfg.Ledger, cfg.Events = ledger, nil
	engine, err := consensus.New(storage.NewPrefixDB(ov, prefixBridge), cfg)
	if err != nil {
		return false, fmt.Errorf("genesis engine: %w", err)
	}
	if err := applyGenesis(gen, ledger, engine); err != nil {
		return false, err
	}
	if err := storage.NewPrefixDB(ov, prefixMeta).Put(keyGenesis, genHash[:]); err != nil {
		return false, fmt.Errorf("write genesis marker: %w", err)
	}
	if err := ov.Commit(); err != nil {
		return false, fmt.Errorf("commit genesis: %w", err)
	}
	return true, nil
}

func applyGenesis(gen *config.Genesis, ledger *token.Store, engine *consensus.Engine) error {
	if err := ledger.SetMetadata(&token.Metadata{
		Name:     gen.Token.Name,
		Symbol:   gen.Token.Symbol,
		Decimals: gen.Token.Decimals,
	}); err != nil {
		return fmt.Errorf("token metadata: %w", err)
	}

	addrs := make([]string, 0, len(gen.Alloc))
	for a := range gen.Alloc {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		addr, err := types.ParseAddress(a)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", a, err)
		}
		if err := ledger.Mint(addr, gen.Alloc[a]); err != nil {
			return fmt.Errorf("mint %s: %w", addr, err)
		}
	}
	if gen.RewardPool > 0 {
		if err := ledger.Mint(gen.BridgeAddress(), gen.RewardPool); err != nil {
			return fmt.Errorf("mint reward pool: %w", err)
		}
	}

	rootID, err := gen.GenesisBlockID()
	if err != nil {
		return err
	}
	if err := engine.Init(rootID); err != nil {
		return fmt.Errorf("init block tree: %w", err)
	}

	for i, op := range gen.Operators {
		addr, err := types.ParseAddress(op.Address)
		if err != nil {
			return fmt.Errorf("operators[%d]: %w", i, err)
		}
		if err := ledger.Approve(addr, gen.BridgeAddress(), op.Stake); err != nil {
			return fmt.Errorf("operators[%d] approve: %w", i, err)
		}
		if _, err := engine.Join(addr, op.Stake); err != nil {
			return fmt.Errorf("operators[%d] join: %w", i, err)
		}
	}

	return nil
}
