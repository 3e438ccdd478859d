package rpc

import (
	"encoding/json"

	"github.com/ltlmaps/leap-contracts/internal/blocktree"
	"github.com/ltlmaps/leap-contracts/internal/consensus"
	"github.com/ltlmaps/leap-contracts/internal/operator"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application error codes. Each consensus error class has its own code so
// clients can branch on it without parsing messages.
const (
	CodeNotFound         = -32000
	CodeUnauthorized     = -32001
	CodeDanglingParent   = -32002
	CodeDuplicateBlock   = -32003
	CodeWindowViolation  = -32004
	CodeRateLimited      = -32005
	CodeStakeBound       = -32006
	CodeAlreadyClaimed   = -32007
	CodeProofMismatch    = -32008
	CodeCooldown         = -32009
	CodeOverflow         = -32010
	CodeLedger           = -32011
	CodeBadNonce         = -32012
	CodeSignatureInvalid = -32013
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// ── Param types ─────────────────────────────────────────────────────────

// HashParam identifies a block by id.
type HashParam struct {
	Hash string `json:"hash"`
}

// HeightParam identifies a height.
type HeightParam struct {
	Height uint64 `json:"height"`
}

// BranchParam selects a child of a block.
type BranchParam struct {
	Hash  string `json:"hash"`
	Index int    `json:"index"`
}

// AddressParam identifies an account.
type AddressParam struct {
	Address string `json:"address"`
}

// AllowanceParam identifies an owner/spender pair.
type AllowanceParam struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

// TipParam lists the operators fork choice counts. Empty means every
// registered operator.
type TipParam struct {
	Operators []string `json:"operators,omitempty"`
}

// SubmitBlockParam is a sealed block submission. Orphans, when present,
// are cleaned up after the block is accepted.
type SubmitBlockParam struct {
	Prev      string   `json:"prev"`
	Root      string   `json:"root"`
	Signature string   `json:"signature"`
	Orphans   []string `json:"orphans,omitempty"`
}

// PayoutParam names the operator to pay out.
type PayoutParam struct {
	Operator string `json:"operator"`
}

// JoinParam stakes Amount for the signer.
type JoinParam struct {
	Amount uint64 `json:"amount"`
	Auth
}

// LeaveParam requests leave for the signer.
type LeaveParam struct {
	Auth
}

// ClaimParam claims an epoch reward for the signer.
type ClaimParam struct {
	BlockID  string   `json:"block_id"`
	Coinbase []string `json:"coinbase"`
	Proof    []string `json:"proof"`
	BlockSig string   `json:"block_signature"`
	Auth
}

// ApproveParam lets Spender move up to Amount of the signer's tokens.
type ApproveParam struct {
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
	Auth
}

// TransferParam sends Amount of the signer's tokens to To.
type TransferParam struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Auth
}

// ── Result types ────────────────────────────────────────────────────────

// InfoResult is returned by bridge_getInfo.
type InfoResult struct {
	ChainID             string `json:"chain_id"`
	ChainName           string `json:"chain_name"`
	Symbol              string `json:"symbol"`
	TipID               string `json:"tip_id"`
	TipHeight           uint64 `json:"tip_height"`
	LastParentBlock     uint64 `json:"last_parent_block"`
	Operators           uint64 `json:"operators"`
	EpochLength         uint64 `json:"epoch_length"`
	ParentBlockInterval uint64 `json:"parent_block_interval"`
	BlockReward         uint64 `json:"block_reward"`
	StakePeriod         uint64 `json:"stake_period"`
	Hash                string `json:"hash"`
	BridgeAddress       string `json:"bridge_address"`
	TotalSupply         uint64 `json:"total_supply"`
}

// BlockResult describes a stored block.
type BlockResult struct {
	ID          string   `json:"id"`
	Parent      string   `json:"parent"`
	Height      uint64   `json:"height"`
	Operator    string   `json:"operator"`
	Root        string   `json:"root"`
	ParentIndex int      `json:"parent_index"`
	Children    []string `json:"children"`
}

// NewBlockResult converts a tree node to its RPC form.
func NewBlockResult(n *blocktree.Node) *BlockResult {
	children := make([]string, len(n.Children))
	for i, c := range n.Children {
		children[i] = c.String()
	}
	r := &BlockResult{
		ID:          n.ID.String(),
		Height:      n.Height,
		Root:        n.Root.String(),
		ParentIndex: n.ParentIndex,
		Children:    children,
	}
	if !n.IsRoot() {
		r.Parent = n.Parent.String()
		r.Operator = n.Operator.String()
	}
	return r
}

// BranchCountResult is returned by bridge_getBranchCount.
type BranchCountResult struct {
	Count int `json:"count"`
}

// BranchResult is returned by bridge_getBranchAtIndex.
type BranchResult struct {
	ID string `json:"id"`
}

// TipResult is returned by bridge_getTip.
type TipResult struct {
	ID    string `json:"id"`
	Score uint64 `json:"score"`
}

// OperatorResult describes a registry record.
type OperatorResult struct {
	Address      string `json:"address"`
	Stake        uint64 `json:"stake"`
	JoinedAt     uint64 `json:"joined_at"`
	ClaimedUntil uint64 `json:"claimed_until"`
	Leaving      bool   `json:"leaving"`
	LeaveHeight  uint64 `json:"leave_height,omitempty"`
	// Blocks, LastHeight and Active come from this node's activity
	// tracker and reset when the node restarts.
	Blocks     uint64 `json:"blocks"`
	LastHeight uint64 `json:"last_height,omitempty"`
	Active     bool   `json:"active"`
}

func newOperatorResult(r *operator.Record, stats *consensus.OperatorStats, active bool) *OperatorResult {
	out := &OperatorResult{
		Address:      r.Address.String(),
		Stake:        r.Stake,
		JoinedAt:     r.JoinedAt,
		ClaimedUntil: r.ClaimedUntil,
		Leaving:      r.Leaving,
		LeaveHeight:  r.LeaveHeight,
		Active:       active,
	}
	if stats != nil {
		out.Blocks = stats.BlockCount
		out.LastHeight = stats.LastHeight
	}
	return out
}

// OperatorsResult is returned by bridge_getOperators.
type OperatorsResult struct {
	Count     int               `json:"count"`
	Operators []*OperatorResult `json:"operators"`
}

// ArchivedResult is returned by bridge_getArchived.
type ArchivedResult struct {
	Height uint64   `json:"height"`
	IDs    []string `json:"ids"`
}

// SubmitResult is returned by bridge_submitBlock.
type SubmitResult struct {
	ID       string `json:"id"`
	Height   uint64 `json:"height"`
	Advanced bool   `json:"advanced"`
	Pruned   int    `json:"pruned"`
	Archived int    `json:"archived"`
	Deleted  int    `json:"deleted"`
}

// PayoutResult is returned by bridge_payout.
type PayoutResult struct {
	Operator string `json:"operator"`
	Amount   uint64 `json:"amount"`
}

// ClaimResult is returned by bridge_claimReward.
type ClaimResult struct {
	Epoch  uint64 `json:"epoch"`
	Blocks int    `json:"blocks"`
	Amount uint64 `json:"amount"`
}

// NonceResult is returned by bridge_getNonce. Signed calls must use a
// nonce greater than Nonce.
type NonceResult struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

// BalanceResult is returned by token_getBalance.
type BalanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Stake   uint64 `json:"stake"`
}

// AllowanceResult is returned by token_getAllowance.
type AllowanceResult struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance uint64 `json:"allowance"`
}

// TokenInfoResult is returned by token_getInfo.
type TokenInfoResult struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply uint64 `json:"total_supply"`
}

// OKResult acknowledges a call with no other output.
type OKResult struct {
	OK bool `json:"ok"`
}

// PeerInfo describes a connected peer.
type PeerInfo struct {
	ID          string `json:"id"`
	ConnectedAt string `json:"connected_at"`
	Source      string `json:"source,omitempty"`
}

// PeerInfoResult is returned by net_getPeerInfo.
type PeerInfoResult struct {
	Count int        `json:"count"`
	Peers []PeerInfo `json:"peers"`
}

// NodeInfoResult is returned by net_getNodeInfo.
type NodeInfoResult struct {
	ID    string   `json:"id"`
	Addrs []string `json:"addrs"`
	Peers int      `json:"peers"`
}
