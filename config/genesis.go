package config

import (
	"encoding/json"
	"fmt"
	"math"
	"math/bits"
	"os"
	"sort"
	"time"

	"github.com/ltlmaps/leap-contracts/internal/consensus"
	"github.com/ltlmaps/leap-contracts/internal/keys"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants. 1 token = 10^9 base units so supplies stay well
// inside uint64.
const (
	Decimals = 9
	Token    = 1_000_000_000
)

// Genesis holds the genesis configuration and protocol rules.
type Genesis struct {
	// Chain identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`

	// Timestamp anchors the parent-ledger clock (unix seconds).
	Timestamp uint64 `json:"timestamp"`

	// Token is the staking and reward token.
	Token TokenConfig `json:"token"`

	// Alloc maps addresses to initial balances in base units.
	Alloc map[string]uint64 `json:"alloc"`

	// RewardPool is minted to the bridge account to fund block rewards.
	RewardPool uint64 `json:"reward_pool"`

	// Operators are staked at genesis from their allocations.
	Operators []GenesisOperator `json:"operators,omitempty"`

	// Protocol rules
	Protocol ProtocolConfig `json:"protocol"`
}

// TokenConfig describes the ledger token.
type TokenConfig struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// GenesisOperator is an operator registered at genesis.
type GenesisOperator struct {
	Address string `json:"address"`
	Stake   uint64 `json:"stake"`
}

// ProtocolConfig holds consensus-critical rules.
// All nodes MUST agree on these values.
type ProtocolConfig struct {
	// EpochLength is the consensus window, reward epoch and committee size.
	EpochLength uint64 `json:"epoch_length"`
	// ParentBlockInterval is the minimum parent blocks between tip advances.
	ParentBlockInterval uint64 `json:"parent_block_interval"`
	// BlockReward is paid per proven block, in base units.
	BlockReward uint64 `json:"block_reward"`
	// StakePeriod is the minimum stake age in seconds before leaving.
	StakePeriod uint64 `json:"stake_period"`
	// ParentBlockTime is the parent ledger's block time in seconds.
	ParentBlockTime uint64 `json:"parent_block_time"`
	// Hash names the block hash function: blake3 or keccak256.
	Hash string `json:"hash"`
}

// =============================================================================
// Testnet Identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet)
// at m/44'/1337'/0'/0/0 with no passphrase.
// =============================================================================

// TestnetMnemonic is the well-known seed phrase for the testnet operator.
const TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

// TestnetOperatorKey derives the testnet operator's signing key.
func TestnetOperatorKey() (*crypto.PrivateKey, error) {
	return keys.FromMnemonic(TestnetMnemonic, "", 0, 0)
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "leap-mainnet-1",
		ChainName: "Leap Mainnet",
		Timestamp: 1775001600, // 2026-04-01
		Token:     TokenConfig{Name: "Leap Token", Symbol: "LEAP", Decimals: Decimals},
		Alloc: map[string]uint64{
			"0x3f1a2c9e7b5d4086a1e2f3b4c5d6e7f809a1b2c3": 10_000 * Token, // treasury
		},
		RewardPool: 1_000 * Token,
		Protocol: ProtocolConfig{
			EpochLength:         32,
			ParentBlockInterval: 2,
			BlockReward:         Token / 10,
			StakePeriod:         7 * 24 * 3600,
			ParentBlockTime:     12,
			Hash:                crypto.HashKeccak256,
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration. Its single
// operator is derived from TestnetMnemonic.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "leap-testnet-1"
	g.ChainName = "Leap Testnet"
	g.Token.Name = "Leap Test Token"
	g.Token.Symbol = "tLEAP"

	// Relaxed pacing for testing.
	g.Protocol.EpochLength = 8
	g.Protocol.ParentBlockInterval = 0
	g.Protocol.StakePeriod = 3600
	g.Protocol.Hash = crypto.HashBlake3

	key, err := TestnetOperatorKey()
	if err != nil {
		// The mnemonic is a constant; derivation cannot fail.
		panic(fmt.Sprintf("testnet operator key: %v", err))
	}
	addr := key.Address().String()
	g.Alloc = map[string]uint64{addr: 2_000 * Token}
	g.RewardPool = 1_000 * Token
	// Supply 3000: stake bounds are [375, 1875] tokens.
	g.Operators = []GenesisOperator{{Address: addr, Stake: 1_000 * Token}}
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// Validate checks that the genesis configuration is usable.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	p := g.Protocol
	if p.EpochLength == 0 {
		return fmt.Errorf("epoch_length must be positive")
	}
	if p.EpochLength > consensus.MaxEpochLength {
		return fmt.Errorf("epoch_length exceeds %d", uint64(consensus.MaxEpochLength))
	}
	if p.ParentBlockTime == 0 {
		return fmt.Errorf("parent_block_time must be positive")
	}
	if p.ParentBlockTime > math.MaxInt64/uint64(time.Second) {
		return fmt.Errorf("parent_block_time too large")
	}
	if _, err := crypto.HasherByName(p.Hash); err != nil {
		return err
	}
	if g.Token.Symbol == "" {
		return fmt.Errorf("token.symbol is required")
	}

	alloc := make(map[types.Address]uint64, len(g.Alloc))
	for addrStr, v := range g.Alloc {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		if _, dup := alloc[addr]; dup {
			return fmt.Errorf("duplicate alloc address %s", addr)
		}
		alloc[addr] = v
	}

	supply, err := g.Supply()
	if err != nil {
		return err
	}
	if supply < p.EpochLength {
		return fmt.Errorf("total supply %d cannot fund a minimum stake with epoch_length %d", supply, p.EpochLength)
	}
	if hi, _ := bits.Mul64(supply, 5); hi >= p.EpochLength {
		return fmt.Errorf("5 * supply / epoch_length overflows")
	}
	minStake := supply / p.EpochLength
	hi, lo := bits.Mul64(supply, 5)
	maxStake, _ := bits.Div64(hi, lo, p.EpochLength)

	if uint64(len(g.Operators)) > p.EpochLength {
		return fmt.Errorf("%d genesis operators exceed epoch_length %d", len(g.Operators), p.EpochLength)
	}
	seen := make(map[types.Address]struct{}, len(g.Operators))
	for i, op := range g.Operators {
		addr, err := types.ParseAddress(op.Address)
		if err != nil {
			return fmt.Errorf("operators[%d]: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("operators[%d]: duplicate %s", i, addr)
		}
		seen[addr] = struct{}{}
		if op.Stake < minStake || op.Stake > maxStake {
			return fmt.Errorf("operators[%d]: stake %d not in [%d, %d]", i, op.Stake, minStake, maxStake)
		}
		if alloc[addr] < op.Stake {
			return fmt.Errorf("operators[%d]: stake %d exceeds allocation %d", i, op.Stake, alloc[addr])
		}
	}
	return nil
}

// Supply returns the token supply minted at genesis: all allocations plus
// the reward pool.
func (g *Genesis) Supply() (uint64, error) {
	total := g.RewardPool
	// Sorted so the overflow error is deterministic.
	addrs := make([]string, 0, len(g.Alloc))
	for a := range g.Alloc {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		var carry uint64
		total, carry = bits.Add64(total, g.Alloc[a], 0)
		if carry != 0 {
			return 0, fmt.Errorf("genesis supply overflows at %s", a)
		}
	}
	return total, nil
}

// Params returns the engine parameters.
func (g *Genesis) Params() consensus.Params {
	return consensus.Params{
		EpochLength:         g.Protocol.EpochLength,
		ParentBlockInterval: g.Protocol.ParentBlockInterval,
		BlockReward:         g.Protocol.BlockReward,
		StakePeriod:         g.Protocol.StakePeriod,
	}
}

// Hasher returns the configured block hash function.
func (g *Genesis) Hasher() (crypto.Hasher, error) {
	return crypto.HasherByName(g.Protocol.Hash)
}

// GenesisBlockID returns the id of the root block.
func (g *Genesis) GenesisBlockID() (types.Hash, error) {
	h, err := g.Hasher()
	if err != nil {
		return types.Hash{}, err
	}
	return consensus.GenesisID(h, g.ChainID), nil
}

// BridgeAddress returns the ledger account that escrows stakes and pays
// rewards.
func (g *Genesis) BridgeAddress() types.Address {
	sum := crypto.Hash([]byte("leap-bridge:" + g.ChainID))
	var a types.Address
	copy(a[:], sum[:types.AddressSize])
	return a
}

// Time returns the genesis timestamp.
func (g *Genesis) Time() time.Time {
	return time.Unix(int64(g.Timestamp), 0)
}

// ParentInterval returns the parent block time.
func (g *Genesis) ParentInterval() time.Duration {
	return time.Duration(g.Protocol.ParentBlockTime) * time.Second
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to identify the chain and detect genesis mismatches.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
